package api

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/s1-storage/s1/internal/storage"
)

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) listBucketResult {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var result listBucketResult
	if err := xml.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("xml.Unmarshal() error = %v body=%s", err, rr.Body.String())
	}
	return result
}

func keysOf(result listBucketResult) []string {
	keys := make([]string, 0, len(result.Contents))
	for _, entry := range result.Contents {
		keys = append(keys, entry.Key)
	}
	return keys
}

func prefixesOf(result listBucketResult) []string {
	prefixes := make([]string, 0, len(result.CommonPrefixes))
	for _, p := range result.CommonPrefixes {
		prefixes = append(prefixes, p.Prefix)
	}
	return prefixes
}

func TestGetObjectServesBytes(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	rr := server.do(t, httptest.NewRequest(http.MethodGet, "/reports/people.parquet", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != string(server.people) {
		t.Fatalf("body does not match stored object")
	}
	if got := rr.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Fatalf("Content-Type = %q", got)
	}
	if rr.Header().Get("ETag") == "" || rr.Header().Get("Last-Modified") == "" {
		t.Fatalf("missing object headers: %v", rr.Header())
	}
}

func TestHeadObjectHasNoBody(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	rr := server.do(t, httptest.NewRequest(http.MethodHead, "/reports/logs/readme.txt", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("HEAD returned a body: %q", rr.Body.String())
	}
	if got := rr.Header().Get("Content-Length"); got != "6" {
		t.Fatalf("Content-Length = %q", got)
	}

	missing := server.do(t, httptest.NewRequest(http.MethodHead, "/reports/nope.txt", nil))
	if missing.Code != http.StatusNotFound || missing.Body.Len() != 0 {
		t.Fatalf("missing HEAD status = %d body=%q", missing.Code, missing.Body.String())
	}
}

func TestGetObjectMissingReturnsNoSuchKey(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	rr := server.do(t, httptest.NewRequest(http.MethodGet, "/reports/missing.parquet", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	var body errorBody
	if err := xml.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("xml.Unmarshal() error = %v", err)
	}
	if body.Code != "NoSuchKey" || body.Resource != "/reports/missing.parquet" || body.RequestID == "" {
		t.Fatalf("unexpected error body: %+v", body)
	}
	if stats := server.cache.Stats(); stats.Size != 0 {
		t.Fatalf("missing object was cached: %+v", stats)
	}
}

func TestGetObjectRejectsEscapingKeys(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	req := httptest.NewRequest(http.MethodGet, "/reports/x", nil)
	req.URL.Path = "/reports/../../etc/passwd"
	rr := server.do(t, req)
	if rr.Code == http.StatusOK {
		t.Fatalf("escaping key was served")
	}
}

func TestListObjectsWithDelimiter(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	result := decodeList(t, server.do(t, httptest.NewRequest(http.MethodGet, "/reports?prefix=logs/&delimiter=/", nil)))
	if result.Name != "reports" || result.Prefix != "logs/" || result.Delimiter != "/" {
		t.Fatalf("unexpected header fields: %+v", result)
	}
	if got := strings.Join(keysOf(result), ","); got != "logs/readme.txt" {
		t.Fatalf("keys = %q", got)
	}
	if got := strings.Join(prefixesOf(result), ","); got != "logs/2024/,logs/2025/" {
		t.Fatalf("common prefixes = %q", got)
	}
	if result.KeyCount != 3 || result.IsTruncated || result.MaxKeys != defaultMaxKeys {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.Contents[0].StorageClass != "STANDARD" || result.Contents[0].Size != 6 {
		t.Fatalf("unexpected entry: %+v", result.Contents[0])
	}
}

func TestListObjectsV2Pagination(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	first := decodeList(t, server.do(t, httptest.NewRequest(http.MethodGet, "/reports/?list-type=2&prefix=logs/&max-keys=2", nil)))
	if got := strings.Join(keysOf(first), ","); got != "logs/2024/a.txt,logs/2024/b.txt" {
		t.Fatalf("first page = %q", got)
	}
	if !first.IsTruncated || first.NextContinuationToken != "logs/2024/b.txt" {
		t.Fatalf("unexpected truncation: %+v", first)
	}

	second := decodeList(t, server.do(t, httptest.NewRequest(http.MethodGet,
		"/reports/?list-type=2&prefix=logs/&max-keys=2&continuation-token="+first.NextContinuationToken, nil)))
	if got := strings.Join(keysOf(second), ","); got != "logs/2025/c.txt,logs/readme.txt" {
		t.Fatalf("second page = %q", got)
	}
	if second.IsTruncated || second.ContinuationToken != "logs/2024/b.txt" {
		t.Fatalf("unexpected second page: %+v", second)
	}

	afterMarker := decodeList(t, server.do(t, httptest.NewRequest(http.MethodGet, "/reports?marker=logs/2025/c.txt", nil)))
	if got := strings.Join(keysOf(afterMarker), ","); got != "logs/readme.txt,notes/not-a-file.txt,people.parquet" {
		t.Fatalf("after marker = %q", got)
	}
}

func TestListObjectsErrors(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	if rr := server.do(t, httptest.NewRequest(http.MethodGet, "/reports?max-keys=lots", nil)); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid max-keys status = %d", rr.Code)
	}
	rr := server.do(t, httptest.NewRequest(http.MethodGet, "/archive", nil))
	if rr.Code != http.StatusNotFound || !strings.Contains(rr.Body.String(), "<Code>NoSuchBucket</Code>") {
		t.Fatalf("missing bucket status = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := server.do(t, httptest.NewRequest(http.MethodHead, "/archive", nil)); rr.Code != http.StatusNotFound {
		t.Fatalf("HEAD missing bucket status = %d", rr.Code)
	}
	if rr := server.do(t, httptest.NewRequest(http.MethodHead, "/reports/", nil)); rr.Code != http.StatusOK {
		t.Fatalf("HEAD bucket status = %d", rr.Code)
	}
}

func TestGetBucketLocation(t *testing.T) {
	server := newTestServer(t, map[string]string{})

	rr := server.do(t, httptest.NewRequest(http.MethodGet, "/reports?location", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var location locationConstraint
	if err := xml.Unmarshal(rr.Body.Bytes(), &location); err != nil {
		t.Fatalf("xml.Unmarshal() error = %v", err)
	}
	if location.Region != "eu-west-2" {
		t.Fatalf("Region = %q", location.Region)
	}

	custom := newTestServer(t, map[string]string{"S1_BUCKET_REGION": "us-east-2"})
	rr = custom.do(t, httptest.NewRequest(http.MethodGet, "/reports/?location=", nil))
	if !strings.Contains(rr.Body.String(), ">us-east-2</LocationConstraint>") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestPaginate(t *testing.T) {
	objects := []storage.ObjectInfo{
		{Key: "a/1"}, {Key: "a/2"}, {Key: "b"}, {Key: "c/1"}, {Key: "d"},
	}

	page := paginate(objects, "", "/", "", 2)
	if len(page.CommonPrefixes) != 1 || page.CommonPrefixes[0] != "a/" || len(page.Contents) != 1 || page.Contents[0].Key != "b" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if !page.IsTruncated || page.NextToken != "b" {
		t.Fatalf("unexpected truncation: %+v", page)
	}

	page = paginate(objects, "", "/", page.NextToken, 2)
	if len(page.CommonPrefixes) != 1 || page.CommonPrefixes[0] != "c/" || page.Contents[0].Key != "d" || page.IsTruncated {
		t.Fatalf("unexpected second page: %+v", page)
	}

	page = paginate(objects, "", "", "", 0)
	if len(page.Contents) != 0 || page.IsTruncated {
		t.Fatalf("max-keys=0 page: %+v", page)
	}

	page = paginate(objects, "a/", "", "", 10)
	if len(page.Contents) != 2 || page.IsTruncated {
		t.Fatalf("prefix page: %+v", page)
	}
}
