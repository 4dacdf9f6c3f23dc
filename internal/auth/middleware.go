package auth

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"

	"github.com/s1-storage/s1/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware admits requests whose access key is allow-listed for the bucket
// named by the {bucket} path value. Signatures are not verified.
func Middleware(logger *slog.Logger, validator AccessKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessKey := ExtractAccessKey(r)
			if accessKey == "" {
				writeDenied(w, r, http.StatusForbidden, "AccessDenied", "missing access key")
				return
			}

			identity, ok := validator.Validate(r.Context(), accessKey)
			if !ok {
				if logger != nil {
					logger.WarnContext(r.Context(), "authentication failed",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("path", r.URL.Path),
					)
				}
				writeDenied(w, r, http.StatusForbidden, "InvalidAccessKeyId", "the access key does not exist")
				return
			}
			bucket := r.PathValue("bucket")
			if bucket != "" && !identity.CanAccess(bucket) {
				if logger != nil {
					logger.WarnContext(r.Context(), "bucket access denied",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("owner", identity.Owner),
						slog.String("bucket", bucket),
					)
				}
				writeDenied(w, r, http.StatusForbidden, "AccessDenied", "access denied to bucket "+bucket)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// ExtractAccessKey reads the access key id from X-API-Key, a SigV4 or SigV2
// Authorization header, a bearer token, or the X-Amz-Credential presign
// query parameter, in that order.
func ExtractAccessKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if key := accessKeyFromAuthorization(strings.TrimSpace(r.Header.Get("Authorization"))); key != "" {
		return key
	}
	return credentialAccessKey(r.URL.Query().Get("X-Amz-Credential"))
}

func accessKeyFromAuthorization(authorization string) string {
	const (
		sigV4Prefix  = "AWS4-HMAC-SHA256 "
		sigV2Prefix  = "AWS "
		bearerPrefix = "Bearer "
	)
	switch {
	case authorization == "":
		return ""
	case strings.HasPrefix(authorization, sigV4Prefix):
		for _, part := range strings.Split(strings.TrimPrefix(authorization, sigV4Prefix), ",") {
			name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
			if ok && name == "Credential" {
				return credentialAccessKey(value)
			}
		}
		return ""
	case strings.HasPrefix(authorization, sigV2Prefix):
		key, _, _ := strings.Cut(strings.TrimPrefix(authorization, sigV2Prefix), ":")
		return strings.TrimSpace(key)
	case strings.HasPrefix(authorization, bearerPrefix):
		return strings.TrimSpace(strings.TrimPrefix(authorization, bearerPrefix))
	default:
		return ""
	}
}

// credentialAccessKey takes "AKID/20240101/region/s3/aws4_request".
func credentialAccessKey(credential string) string {
	key, _, _ := strings.Cut(strings.TrimSpace(credential), "/")
	return strings.TrimSpace(key)
}

type errorBody struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

func writeDenied(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(errorBody{
		Code:      code,
		Message:   message,
		Resource:  r.URL.Path,
		RequestID: observability.TraceIDFromContext(r.Context()),
	})
}
