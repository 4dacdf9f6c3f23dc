package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/s1-storage/s1/internal/storage"
)

func TestGetCachesSuccessfulFetch(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k1"] = []byte("one")
	store := New(backend, 2)

	for i := 0; i < 3; i++ {
		object, err := store.Get(context.Background(), "b", "k1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(object.Data) != "one" {
			t.Fatalf("Data = %q", object.Data)
		}
	}
	if got := backend.calls("b/k1"); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}
	stats := store.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Size != 1 || stats.Capacity != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestNotFoundIsNotCached(t *testing.T) {
	backend := newFakeBackend()
	store := New(backend, 2)

	for i := 0; i < 2; i++ {
		if _, err := store.Get(context.Background(), "b", "missing"); !errors.Is(err, storage.ErrObjectNotFound) {
			t.Fatalf("Get() error = %v, want ErrObjectNotFound", err)
		}
	}
	if got := backend.calls("b/missing"); got != 2 {
		t.Fatalf("backend calls = %d, want 2", got)
	}
	if store.Stats().Size != 0 {
		t.Fatalf("not-found result was cached")
	}

	backend.objects["b/missing"] = []byte("now here")
	object, err := store.Get(context.Background(), "b", "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(object.Data) != "now here" {
		t.Fatalf("Data = %q", object.Data)
	}
}

func TestBackendErrorIsNotCached(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("v")
	backend.failNext = fmt.Errorf("connection reset")
	store := New(backend, 2)

	if _, err := store.Get(context.Background(), "b", "k"); err == nil {
		t.Fatalf("expected backend error")
	}
	if _, err := store.Get(context.Background(), "b", "k"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := backend.calls("b/k"); got != 2 {
		t.Fatalf("backend calls = %d, want 2", got)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	backend := newFakeBackend()
	for _, key := range []string{"k1", "k2", "k3", "k4"} {
		backend.objects["b/"+key] = []byte(key)
	}
	store := New(backend, 2)
	ctx := context.Background()

	mustGet(t, store, "k1")
	mustGet(t, store, "k2")
	mustGet(t, store, "k1") // k1 is now most recent
	mustGet(t, store, "k3") // evicts k2

	if store.Stats().Size != 2 {
		t.Fatalf("Size = %d, want 2", store.Stats().Size)
	}
	mustGet(t, store, "k1")
	mustGet(t, store, "k3")
	if backend.calls("b/k1") != 1 || backend.calls("b/k3") != 1 {
		t.Fatalf("k1/k3 should still be cached: calls k1=%d k3=%d", backend.calls("b/k1"), backend.calls("b/k3"))
	}
	if _, err := store.Get(ctx, "b", "k2"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if backend.calls("b/k2") != 2 {
		t.Fatalf("k2 should have been evicted: calls = %d", backend.calls("b/k2"))
	}
}

func TestCacheBoundKeepsMostRecent(t *testing.T) {
	backend := newFakeBackend()
	const capacity = 3
	keys := []string{"a", "b", "c", "d", "e", "f"}
	for _, key := range keys {
		backend.objects["b/"+key] = []byte(key)
	}
	store := New(backend, capacity)
	for _, key := range keys {
		mustGet(t, store, key)
	}
	if store.Stats().Size != capacity {
		t.Fatalf("Size = %d, want %d", store.Stats().Size, capacity)
	}
	for _, key := range keys[len(keys)-capacity:] {
		mustGet(t, store, key)
		if backend.calls("b/"+key) != 1 {
			t.Fatalf("%s should still be cached", key)
		}
	}
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("shared")
	backend.delay = 50 * time.Millisecond
	store := New(backend, 4)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			object, err := store.Get(context.Background(), "b", "k")
			if err != nil {
				errs <- err
				return
			}
			if string(object.Data) != "shared" {
				errs <- fmt.Errorf("Data = %q", object.Data)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Get() error = %v", err)
	}
	if got := backend.calls("b/k"); got != 1 {
		t.Fatalf("backend calls = %d, want 1", got)
	}
}

func TestClearResetsEntriesAndCounters(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("v")
	store := New(backend, 2)
	mustGet(t, store, "k")
	mustGet(t, store, "k")

	store.Clear()
	if stats := store.Stats(); stats.Hits != 0 || stats.Misses != 0 || stats.Size != 0 {
		t.Fatalf("unexpected stats after Clear: %+v", stats)
	}
	mustGet(t, store, "k")
	if backend.calls("b/k") != 2 {
		t.Fatalf("expected refetch after Clear")
	}
}

func TestPutInvalidatesKey(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("old")
	store := New(backend, 2)
	mustGet(t, store, "k")

	if _, err := store.Put(context.Background(), "b", "k", bytes.NewReader([]byte("new")), 3, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	object := mustGet(t, store, "k")
	if string(object.Data) != "new" {
		t.Fatalf("Data = %q, want new", object.Data)
	}
}

func TestZeroCapacityDisablesCaching(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("v")
	store := New(backend, 0)
	mustGet(t, store, "k")
	mustGet(t, store, "k")
	if backend.calls("b/k") != 2 || store.Stats().Size != 0 {
		t.Fatalf("expected passthrough, calls=%d size=%d", backend.calls("b/k"), store.Stats().Size)
	}
}

func TestGetReturnsWhenCallerDeadlinePasses(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("slow")
	backend.started = make(chan struct{}, 1)
	backend.release = make(chan struct{})
	store := New(backend, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	_, err := store.Get(ctx, "b", "k")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("Get() returned after %v, want prompt return", elapsed)
	}

	close(backend.release)
	object := mustGet(t, store, "k")
	if string(object.Data) != "slow" {
		t.Fatalf("Data = %q", object.Data)
	}
	if got := backend.calls("b/k"); got != 1 {
		t.Fatalf("backend calls = %d, want the abandoned load to be reused", got)
	}
}

func TestLoadRacingInvalidationIsNotCached(t *testing.T) {
	cases := map[string]func(t *testing.T, store *Store){
		"put": func(t *testing.T, store *Store) {
			if _, err := store.Put(context.Background(), "b", "k", bytes.NewReader([]byte("new")), 3, storage.PutOptions{}); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
		},
		"clear": func(_ *testing.T, store *Store) {
			store.Clear()
		},
	}
	for name, invalidate := range cases {
		t.Run(name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.objects["b/k"] = []byte("old")
			backend.started = make(chan struct{}, 1)
			backend.release = make(chan struct{})
			store := New(backend, 2)

			done := make(chan error, 1)
			go func() {
				_, err := store.Get(context.Background(), "b", "k")
				done <- err
			}()
			<-backend.started
			invalidate(t, store)
			close(backend.release)
			if err := <-done; err != nil {
				t.Fatalf("Get() error = %v", err)
			}

			if size := store.Stats().Size; size != 0 {
				t.Fatalf("Size = %d, want load started before invalidation to be dropped", size)
			}
			if object := mustGet(t, store, "k"); name == "put" && string(object.Data) != "new" {
				t.Fatalf("Data = %q, want new", object.Data)
			}
			if got := backend.calls("b/k"); got != 2 {
				t.Fatalf("backend calls = %d, want refetch after invalidation", got)
			}
		})
	}
}

func TestGetAfterPutDoesNotJoinOlderLoad(t *testing.T) {
	backend := newFakeBackend()
	backend.objects["b/k"] = []byte("old")
	backend.started = make(chan struct{}, 1)
	backend.release = make(chan struct{})
	store := New(backend, 2)

	first := make(chan error, 1)
	go func() {
		_, err := store.Get(context.Background(), "b", "k")
		first <- err
	}()
	<-backend.started
	if _, err := store.Put(context.Background(), "b", "k", bytes.NewReader([]byte("new")), 3, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	second := make(chan storage.Object, 1)
	go func() {
		object, err := store.Get(context.Background(), "b", "k")
		if err != nil {
			t.Errorf("Get() error = %v", err)
		}
		second <- object
	}()
	select {
	case <-backend.started:
	case <-time.After(2 * time.Second):
		close(backend.release)
		t.Fatal("Get() after Put() joined the load that started before it")
	}
	close(backend.release)

	if object := <-second; string(object.Data) != "new" {
		t.Fatalf("Data = %q, want new", object.Data)
	}
	if err := <-first; err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func mustGet(t *testing.T, store *Store, key string) storage.Object {
	t.Helper()
	object, err := store.Get(context.Background(), "b", key)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	return object
}

type fakeBackend struct {
	mu       sync.Mutex
	objects  map[string][]byte
	counts   map[string]*atomic.Int64
	failNext error
	delay    time.Duration
	// When release is set, Get reads the object, signals started and
	// blocks until release is closed.
	started chan struct{}
	release chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}, counts: map[string]*atomic.Int64{}}
}

func (f *fakeBackend) counter(path string) *atomic.Int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	counter, ok := f.counts[path]
	if !ok {
		counter = &atomic.Int64{}
		f.counts[path] = counter
	}
	return counter
}

func (f *fakeBackend) calls(path string) int64 {
	return f.counter(path).Load()
}

func (f *fakeBackend) Get(_ context.Context, bucket, key string) (storage.Object, error) {
	path := bucket + "/" + key
	f.counter(path).Add(1)
	object, err := f.read(key, path)
	if f.release != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return object, err
}

func (f *fakeBackend) read(key, path string) (storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return storage.Object{}, err
	}
	data, ok := f.objects[path]
	if !ok {
		return storage.Object{}, storage.ErrObjectNotFound
	}
	return storage.Object{Info: storage.ObjectInfo{Key: key, Size: int64(len(data))}, Data: data}, nil
}

func (f *fakeBackend) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBackend) List(_ context.Context, _, _ string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeBackend) HealthCheck(_ context.Context) error {
	return nil
}
