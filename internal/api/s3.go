package api

import (
	"bytes"
	"encoding/xml"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/s1-storage/s1/internal/config"
	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/storage"
)

const defaultMaxKeys = 1000

type listBucketResult struct {
	XMLName               xml.Name       `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Marker                string         `xml:"Marker"`
	NextMarker            string         `xml:"NextMarker,omitempty"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	IsTruncated           bool           `xml:"IsTruncated"`
	Contents              []listEntry    `xml:"Contents"`
	CommonPrefixes        []commonPrefix `xml:"CommonPrefixes"`
}

type listEntry struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

type locationConstraint struct {
	XMLName xml.Name `xml:"http://s3.amazonaws.com/doc/2006-03-01/ LocationConstraint"`
	Region  string   `xml:",chardata"`
}

// handleBucket serves bucket level requests: GetBucketLocation, ListObjects
// and HEAD bucket.
func handleBucket(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if err := storage.ValidateBucket(bucket); err != nil {
		writeS3Error(w, r, "InvalidBucketName", err.Error())
		return
	}
	if _, ok := r.URL.Query()["location"]; ok {
		writeXML(w, http.StatusOK, locationConstraint{Region: cfg.Select.BucketRegion})
		return
	}
	if deps.Objects == nil {
		writeS3Error(w, r, "NotImplemented", "object store is not configured")
		return
	}
	if r.Method == http.MethodHead {
		if _, err := deps.Objects.List(r.Context(), bucket, ""); err != nil {
			logStorageError(deps, r, err)
			writeS3Error(w, r, storageErrorCode(err), "")
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}
	handleListObjects(deps, w, r, bucket)
}

func handleListObjects(deps Dependencies, w http.ResponseWriter, r *http.Request, bucket string) {
	params := r.URL.Query()
	prefix := params.Get("prefix")
	delimiter := params.Get("delimiter")
	maxKeys := defaultMaxKeys
	if raw := params.Get("max-keys"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeS3Error(w, r, "InvalidArgument", "max-keys must be a non-negative integer")
			return
		}
		maxKeys = min(parsed, defaultMaxKeys)
	}
	startAfter := params.Get("start-after")
	continuationToken := params.Get("continuation-token")
	marker := params.Get("marker")
	pivot := firstNonEmpty(startAfter, continuationToken, marker)

	objects, err := deps.Objects.List(r.Context(), bucket, prefix)
	if err != nil {
		logStorageError(deps, r, err)
		writeS3Error(w, r, storageErrorCode(err), "failed to list bucket "+bucket)
		return
	}

	page := paginate(objects, prefix, delimiter, pivot, maxKeys)
	result := listBucketResult{
		Name:              bucket,
		Prefix:            prefix,
		Marker:            marker,
		StartAfter:        startAfter,
		ContinuationToken: continuationToken,
		KeyCount:          len(page.Contents) + len(page.CommonPrefixes),
		MaxKeys:           maxKeys,
		Delimiter:         delimiter,
		IsTruncated:       page.IsTruncated,
	}
	if page.IsTruncated {
		result.NextMarker = page.NextToken
		result.NextContinuationToken = page.NextToken
	}
	for _, info := range page.Contents {
		result.Contents = append(result.Contents, listEntry{
			Key:          info.Key,
			LastModified: info.LastModified.UTC().Format("2006-01-02T15:04:05.000Z"),
			ETag:         info.ETag,
			Size:         info.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, p := range page.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{Prefix: p})
	}
	writeXML(w, http.StatusOK, result)
}

type listPage struct {
	Contents       []storage.ObjectInfo
	CommonPrefixes []string
	IsTruncated    bool
	NextToken      string
}

// paginate applies prefix, pivot, delimiter grouping and max-keys to a
// key-sorted listing. A common prefix counts as one key and swallows every
// key below it.
func paginate(objects []storage.ObjectInfo, prefix, delimiter, pivot string, maxKeys int) listPage {
	var page listPage
	seen := map[string]struct{}{}
	count := 0
	last := ""
	for _, info := range objects {
		if !strings.HasPrefix(info.Key, prefix) {
			continue
		}
		if pivot != "" && info.Key <= pivot {
			continue
		}
		group := ""
		if delimiter != "" {
			rest := info.Key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				group = prefix + rest[:idx+len(delimiter)]
			}
		}
		if group != "" {
			if _, ok := seen[group]; ok {
				last = info.Key
				continue
			}
		}
		if count >= maxKeys {
			page.IsTruncated = maxKeys > 0
			break
		}
		count++
		last = info.Key
		if group != "" {
			seen[group] = struct{}{}
			page.CommonPrefixes = append(page.CommonPrefixes, group)
			continue
		}
		page.Contents = append(page.Contents, info)
	}
	if page.IsTruncated {
		page.NextToken = last
	}
	return page
}

func handleGetObject(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	bucket := r.PathValue("bucket")
	if err := storage.ValidateBucket(bucket); err != nil {
		writeS3Error(w, r, "InvalidBucketName", err.Error())
		return
	}
	key, err := storage.NormalizeKey(r.PathValue("key"))
	if err != nil {
		writeS3Error(w, r, "InvalidArgument", err.Error())
		return
	}
	if deps.Objects == nil {
		writeS3Error(w, r, "NotImplemented", "object store is not configured")
		return
	}

	object, err := deps.Objects.Get(r.Context(), bucket, key)
	if err != nil {
		logStorageError(deps, r, err)
		writeS3Error(w, r, storageErrorCode(err), "the specified key does not exist")
		return
	}

	modified := object.Info.LastModified
	if modified.IsZero() {
		modified = time.Unix(0, 0)
	}
	header := w.Header()
	header.Set("Content-Type", "application/octet-stream")
	header.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	if object.Info.ETag != "" {
		header.Set("ETag", object.Info.ETag)
	}
	http.ServeContent(w, r, path.Base(key), object.Info.LastModified, bytes.NewReader(object.Data))
}

func handleObjectPost(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if _, ok := r.URL.Query()["select"]; !ok {
		writeS3Error(w, r, "InvalidRequest", "unsupported POST operation")
		return
	}
	handleSelect(deps, w, r)
}

func logStorageError(deps Dependencies, r *http.Request, err error) {
	if storageErrorCode(err) != "InternalError" {
		return
	}
	observability.WithTrace(r.Context(), deps.Logger).ErrorContext(r.Context(), "object store request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
