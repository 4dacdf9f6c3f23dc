package s1ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/s1-storage/s1/internal/storage/s3"
)

type Options struct {
	BaseURL    string
	APIKey     string
	SecretKey  string
	Region     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type settings struct {
	baseURL   string
	apiKey    string
	secretKey string
	region    string
	limit     int
	format    string
	recursive bool
	client    *http.Client
	stdout    io.Writer
	stderr    io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("s1ctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "s1 API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "access key sent with every request")
	secretKey := fs.String("secret-key", firstNonEmpty(defaults.SecretKey, "s1-secret"), "secret key used to sign S3 requests")
	region := fs.String("region", firstNonEmpty(defaults.Region, "eu-west-2"), "region used to sign S3 requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "request timeout (e.g. 10s)")
	limit := fs.Int("limit", 0, "journal entries to return (journal)")
	format := fs.String("format", "csv", "select output format: csv or json")
	recursive := fs.Bool("recursive", false, "list every key below the prefix (ls)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	s := settings{
		baseURL:   strings.TrimRight(*baseURL, "/"),
		apiKey:    strings.TrimSpace(*apiKey),
		secretKey: *secretKey,
		region:    *region,
		limit:     *limit,
		format:    strings.ToLower(strings.TrimSpace(*format)),
		recursive: *recursive,
		client:    client,
		stdout:    stdout,
		stderr:    stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "health":
		return s.callAPI(ctx, http.MethodGet, "/v1/health")
	case "ready":
		return s.callAPI(ctx, http.MethodGet, "/v1/ready")
	case "cache":
		return s.callAPI(ctx, http.MethodGet, "/v1/cache")
	case "cache-clear":
		return s.callAPI(ctx, http.MethodDelete, "/v1/cache")
	case "journal":
		path := "/v1/select-journal"
		if s.limit > 0 {
			path += "?limit=" + strconv.Itoa(s.limit)
		}
		return s.callAPI(ctx, http.MethodGet, path)
	case "journal-prune":
		return s.callAPI(ctx, http.MethodPost, "/v1/select-journal/prune")
	case "ls":
		if len(rest) < 1 || len(rest) > 2 {
			return usageError(stderr, "ls requires <bucket> [prefix]")
		}
		prefix := ""
		if len(rest) == 2 {
			prefix = rest[1]
		}
		return s.list(ctx, rest[0], prefix)
	case "get":
		if len(rest) != 2 {
			return usageError(stderr, "get requires <bucket> <key>")
		}
		return s.get(ctx, rest[0], rest[1])
	case "select":
		if len(rest) != 3 {
			return usageError(stderr, "select requires <bucket> <key> <sql>")
		}
		return s.selectObject(ctx, rest[0], rest[1], rest[2])
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func (s settings) callAPI(ctx context.Context, method, path string) int {
	code, responseBody, err := doRequest(ctx, s.client, method, s.baseURL+path, s.apiKey)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(s.stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(s.stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(s.stdout, string(responseBody))
	}
	return 0
}

func (s settings) list(ctx context.Context, bucket, prefix string) int {
	mc, err := s.s3Client()
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "s3 client: %v\n", err)
		return 1
	}
	for object := range mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: s.recursive}) {
		if object.Err != nil {
			_, _ = fmt.Fprintf(s.stderr, "list failed: %v\n", object.Err)
			return 1
		}
		if strings.HasSuffix(object.Key, "/") && object.Size == 0 && object.LastModified.IsZero() {
			_, _ = fmt.Fprintf(s.stdout, "%30s  %s\n", "PRE", object.Key)
			continue
		}
		_, _ = fmt.Fprintf(s.stdout, "%s %10d  %s\n", object.LastModified.UTC().Format(time.RFC3339), object.Size, object.Key)
	}
	return 0
}

func (s settings) get(ctx context.Context, bucket, key string) int {
	mc, err := s.s3Client()
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "s3 client: %v\n", err)
		return 1
	}
	object, err := mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "get failed: %v\n", err)
		return 1
	}
	defer func() { _ = object.Close() }()
	if _, err := io.Copy(s.stdout, object); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "get failed: %v\n", err)
		return 1
	}
	return 0
}

func (s settings) selectObject(ctx context.Context, bucket, key, expression string) int {
	opts := minio.SelectObjectOptions{
		Expression:     expression,
		ExpressionType: minio.QueryExpressionTypeSQL,
		InputSerialization: minio.SelectObjectInputSerialization{
			CompressionType: minio.SelectCompressionNONE,
			Parquet:         &minio.ParquetInputOptions{},
		},
	}
	switch s.format {
	case "csv":
		opts.OutputSerialization.CSV = &minio.CSVOutputOptions{RecordDelimiter: "\n", FieldDelimiter: ","}
	case "json":
		opts.OutputSerialization.JSON = &minio.JSONOutputOptions{RecordDelimiter: "\n"}
	default:
		return usageError(s.stderr, fmt.Sprintf("unsupported -format %q", s.format))
	}

	mc, err := s.s3Client()
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "s3 client: %v\n", err)
		return 1
	}
	results, err := mc.SelectObjectContent(ctx, bucket, key, opts)
	if err != nil {
		_, _ = fmt.Fprintf(s.stderr, "select failed: %v\n", err)
		return 1
	}
	defer func() { _ = results.Close() }()
	if _, err := io.Copy(s.stdout, results); err != nil {
		_, _ = fmt.Fprintf(s.stderr, "select failed: %v\n", err)
		return 1
	}
	return 0
}

// s3Client builds a minio client for the API base URL. The access key is the
// API key; the server only checks that it is allow-listed.
func (s settings) s3Client() (*minio.Client, error) {
	endpoint, secure, err := s3.ParseEndpoint(s.baseURL, false)
	if err != nil {
		return nil, err
	}
	accessKey := firstNonEmpty(s.apiKey, "s1-anonymous")
	return minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(accessKey, s.secretKey, ""),
		Secure:    secure,
		Region:    s.region,
		Transport: s.client.Transport,
	})
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func usageError(w io.Writer, message string) int {
	_, _ = fmt.Fprintf(w, "%s\n\n", message)
	writeUsage(w)
	return 2
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: s1ctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                      GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                       GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  cache                       GET /v1/cache")
	_, _ = fmt.Fprintln(w, "  cache-clear                 DELETE /v1/cache")
	_, _ = fmt.Fprintln(w, "  journal                     GET /v1/select-journal")
	_, _ = fmt.Fprintln(w, "  journal-prune               POST /v1/select-journal/prune")
	_, _ = fmt.Fprintln(w, "  ls <bucket> [prefix]        ListObjectsV2")
	_, _ = fmt.Fprintln(w, "  get <bucket> <key>          GetObject to stdout")
	_, _ = fmt.Fprintln(w, "  select <bucket> <key> <sql> SelectObjectContent over a Parquet object")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
