package api

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/s1-storage/s1/internal/auth"
	"github.com/s1-storage/s1/internal/eventstream"
	"github.com/s1-storage/s1/internal/journal"
	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/output"
	"github.com/s1-storage/s1/internal/s3select"
	"github.com/s1-storage/s1/internal/storage"
)

const (
	maxSelectBodyBytes = 1 << 20
	journalTimeout     = 2 * time.Second
)

var errMalformedXML = errors.New("malformed select request")

type selectObjectContentRequest struct {
	XMLName             xml.Name                `xml:"SelectObjectContentRequest"`
	Expression          string                  `xml:"Expression"`
	ExpressionType      string                  `xml:"ExpressionType"`
	InputSerialization  *inputSerialization     `xml:"InputSerialization"`
	OutputSerialization *outputSerializationXML `xml:"OutputSerialization"`
}

type inputSerialization struct {
	CompressionType string    `xml:"CompressionType"`
	Parquet         *struct{} `xml:"Parquet"`
	CSV             *struct{} `xml:"CSV"`
	JSON            *struct{} `xml:"JSON"`
}

type outputSerializationXML struct {
	CSV  *csvOutput  `xml:"CSV"`
	JSON *jsonOutput `xml:"JSON"`
}

type csvOutput struct {
	FieldDelimiter  string `xml:"FieldDelimiter"`
	RecordDelimiter string `xml:"RecordDelimiter"`
}

type jsonOutput struct {
	Type            string `xml:"Type"`
	RecordDelimiter string `xml:"RecordDelimiter"`
}

// parseSelectRequest decodes a SelectObjectContentRequest body. Elements
// match with or without the S3 namespace.
func parseSelectRequest(body []byte) (s3select.Request, error) {
	var doc selectObjectContentRequest
	if err := xml.Unmarshal(body, &doc); err != nil {
		return s3select.Request{}, fmt.Errorf("%w: %v", errMalformedXML, err)
	}

	request := s3select.Request{
		Expression:     strings.TrimSpace(doc.Expression),
		ExpressionType: strings.TrimSpace(doc.ExpressionType),
	}
	if in := doc.InputSerialization; in != nil {
		switch compression := strings.ToUpper(strings.TrimSpace(in.CompressionType)); compression {
		case "", "NONE":
		default:
			return s3select.Request{}, fmt.Errorf("%w: compression type %s", s3select.ErrUnsupportedFormat, compression)
		}
		switch {
		case in.Parquet != nil:
			request.InputFormat = s3select.InputFormatParquet
		case in.CSV != nil:
			request.InputFormat = "CSV"
		case in.JSON != nil:
			request.InputFormat = "JSON"
		}
	}
	if out := doc.OutputSerialization; out != nil {
		switch {
		case out.CSV != nil:
			request.Output = output.Config{
				Format:          output.FormatCSV,
				FieldDelimiter:  out.CSV.FieldDelimiter,
				RecordDelimiter: out.CSV.RecordDelimiter,
			}
		case out.JSON != nil:
			request.Output = output.Config{
				Format:          output.FormatJSON,
				JSONType:        output.JSONType(strings.TrimSpace(out.JSON.Type)),
				RecordDelimiter: out.JSON.RecordDelimiter,
			}
		}
	}
	return request, nil
}

func handleSelect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	start := time.Now()
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
	if deps.Select == nil {
		writeS3Error(w, r, "NotImplemented", "select is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSelectBodyBytes))
	if err != nil {
		writeS3Error(w, r, "MalformedXML", "request body could not be read: "+err.Error())
		return
	}
	request, err := parseSelectRequest(body)
	if err != nil {
		code := s3select.ErrorCode(err)
		if errors.Is(err, errMalformedXML) {
			code = "MalformedXML"
		}
		writeS3Error(w, r, code, err.Error())
		return
	}
	request.Bucket = bucket
	request.Key = key

	entry := journal.Entry{
		Bucket:       bucket,
		Key:          key,
		Expression:   request.Expression,
		OutputFormat: strings.ToUpper(string(request.Output.Format)),
	}
	selectCtx := r.Context()
	if deps.SelectTimeout > 0 {
		var cancel context.CancelFunc
		selectCtx, cancel = context.WithTimeout(selectCtx, deps.SelectTimeout)
		defer cancel()
	}
	result, err := deps.Select.Execute(selectCtx, request)
	if err == nil {
		var frames bytes.Buffer
		if encodeErr := eventstream.NewEncoder(&frames).EncodeRecords(result.Payload, result.Output.ContentType()); encodeErr != nil {
			err = fmt.Errorf("encode event stream: %w", encodeErr)
		} else {
			w.Header().Set("Content-Type", eventstream.ContentType)
			w.Header().Set("Content-Length", strconv.Itoa(frames.Len()))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(frames.Bytes())

			entry.StatusCode = http.StatusOK
			entry.OutputFormat = string(result.Output.Format)
			entry.Rows = int64(result.Rows)
			entry.ReturnedBytes = int64(len(result.Payload))
		}
	}
	if err != nil {
		code := s3select.ErrorCode(err)
		message := err.Error()
		if code == "InternalError" {
			observability.WithTrace(r.Context(), deps.Logger).ErrorContext(r.Context(), "select failed",
				slog.String("bucket", bucket),
				slog.String("key", key),
				slog.Any("error", err),
			)
			message = internalErrorMessage
		}
		writeS3Error(w, r, code, message)
		entry.StatusCode = statusForCode(code)
		entry.ErrorCode = code
	}
	entry.ScannedBytes = result.ScannedBytes
	entry.DurationMs = time.Since(start).Milliseconds()
	recordSelect(deps, r, entry)
}

// recordSelect writes the journal entry after the response has been sent.
// Failures are logged and counted only.
func recordSelect(deps Dependencies, r *http.Request, entry journal.Entry) {
	if deps.Journal == nil {
		return
	}
	entry.TraceID = observability.TraceIDFromContext(r.Context())
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		entry.AccessKey = identity.AccessKey
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), journalTimeout)
	defer cancel()
	if _, err := deps.Journal.Record(ctx, entry); err != nil {
		observability.IncrementJournalWriteFailure()
		observability.WithTrace(r.Context(), deps.Logger).WarnContext(r.Context(), "select journal write failed",
			slog.String("bucket", entry.Bucket),
			slog.String("key", entry.Key),
			slog.Any("error", err),
		)
	}
}
