// Package s3select runs one select request end to end: compile the
// expression, fetch and decode the object, evaluate, then format the rows.
package s3select

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/s1-storage/s1/internal/observability"
	"github.com/s1-storage/s1/internal/output"
	"github.com/s1-storage/s1/internal/query"
	"github.com/s1-storage/s1/internal/storage"
	"github.com/s1-storage/s1/internal/table"
)

const (
	InputFormatParquet = "Parquet"
	ExpressionTypeSQL  = "SQL"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

type Request struct {
	Bucket         string
	Key            string
	Expression     string
	ExpressionType string
	// InputFormat names the serialization of the stored object. Only
	// InputFormatParquet is accepted.
	InputFormat string
	Output      output.Config
}

type Result struct {
	Payload      []byte
	Output       output.Config
	Rows         int
	Columns      []string
	ScannedBytes int64
	Duration     time.Duration
}

type Service struct {
	store   storage.Getter
	decoder table.Decoder
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store storage.Getter, decoder table.Decoder, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		decoder: decoder,
		logger:  observability.OrDiscard(logger),
		now:     time.Now,
	}
}

func (s *Service) Execute(ctx context.Context, req Request) (Result, error) {
	start := s.now()
	result, err := s.execute(ctx, req)
	result.Duration = s.now().Sub(start)

	outcome := "ok"
	if err != nil {
		outcome = ErrorCode(err)
		s.logger.DebugContext(ctx, "select failed",
			slog.String("bucket", req.Bucket),
			slog.String("key", req.Key),
			slog.String("code", outcome),
			slog.String("error", err.Error()),
		)
	}
	observability.ObserveSelect(outcome, result.Rows, result.ScannedBytes, result.Duration)
	return result, err
}

func (s *Service) execute(ctx context.Context, req Request) (Result, error) {
	if s.store == nil || s.decoder == nil {
		return Result{}, errors.New("select service is not configured")
	}
	if !strings.EqualFold(strings.TrimSpace(req.InputFormat), InputFormatParquet) {
		return Result{}, fmt.Errorf("%w: only %s input is supported, got %q", ErrUnsupportedFormat, InputFormatParquet, req.InputFormat)
	}
	if req.ExpressionType != "" && !strings.EqualFold(req.ExpressionType, ExpressionTypeSQL) {
		return Result{}, fmt.Errorf("%w: expression type %q", ErrUnsupportedFormat, req.ExpressionType)
	}
	outCfg, err := req.Output.Normalize()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	compiled, err := query.Compile(req.Expression)
	if err != nil {
		return Result{}, err
	}

	object, err := s.store.Get(ctx, req.Bucket, req.Key)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotFound) {
			return Result{}, fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, req.Bucket, req.Key)
		}
		return Result{}, err
	}
	result := Result{Output: outCfg, ScannedBytes: int64(len(object.Data))}

	input, err := s.decoder.Decode(ctx, object.Data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if !errors.Is(err, table.ErrDecode) {
			err = fmt.Errorf("%w: %v", table.ErrDecode, err)
		}
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	evaluated, err := query.Evaluate(input, compiled)
	if err != nil {
		return result, err
	}
	payload, err := output.Render(evaluated, outCfg)
	if err != nil {
		return result, fmt.Errorf("render records: %w", err)
	}

	result.Payload = payload
	result.Rows = evaluated.NumRows()
	result.Columns = evaluated.ColumnNames()
	return result, nil
}

// ErrorCode names the S3 error code for a select failure.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, query.ErrMalformedQuery):
		return "MalformedQuery"
	case errors.Is(err, ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, storage.ErrObjectNotFound):
		return "NoSuchKey"
	case errors.Is(err, table.ErrDecode):
		return "InvalidObject"
	case errors.Is(err, query.ErrQueryExecution):
		return "QueryExecutionError"
	default:
		return "InternalError"
	}
}
