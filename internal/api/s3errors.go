package api

import (
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/storage"
)

const s3Namespace = "http://s3.amazonaws.com/doc/2006-03-01/"

const internalErrorMessage = "We encountered an internal error. Please try again."

var s3ErrorStatus = map[string]int{
	"MalformedQuery":      http.StatusBadRequest,
	"UnsupportedFormat":   http.StatusBadRequest,
	"MalformedXML":        http.StatusBadRequest,
	"InvalidObject":       http.StatusBadRequest,
	"QueryExecutionError": http.StatusBadRequest,
	"InvalidArgument":     http.StatusBadRequest,
	"InvalidBucketName":   http.StatusBadRequest,
	"InvalidRequest":      http.StatusBadRequest,
	"NoSuchKey":           http.StatusNotFound,
	"NoSuchBucket":        http.StatusNotFound,
	"NotImplemented":      http.StatusNotImplemented,
	"InternalError":       http.StatusInternalServerError,
}

func statusForCode(code string) int {
	if status, ok := s3ErrorStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

func writeXML(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(payload)
}

func writeS3Error(w http.ResponseWriter, r *http.Request, code, message string) {
	status := statusForCode(code)
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	writeXML(w, status, errorBody{
		Code:      code,
		Message:   message,
		Resource:  r.URL.Path,
		RequestID: observability.TraceIDFromContext(r.Context()),
	})
}

// storageErrorCode maps a backend failure to an S3 error code.
func storageErrorCode(err error) string {
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return "NoSuchKey"
	case errors.Is(err, storage.ErrBucketNotFound):
		return "NoSuchBucket"
	default:
		return "InternalError"
	}
}
