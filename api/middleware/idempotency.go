package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/settlement-engine/api/responses"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	pkgredis "github.com/angelmondragon/settlement-engine/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// a crashed handler frees its key after this long
	inFlightTTL = 2 * time.Minute

	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotentBody = 1 << 20
)

type idempotencyRule struct {
	method   string
	segments []string
	ttl      time.Duration
}

func rule(path string, ttl time.Duration) idempotencyRule {
	return idempotencyRule{method: http.MethodPost, segments: splitPath(path), ttl: ttl}
}

// "*" matches exactly one path segment.
var idempotencyRules = []idempotencyRule{
	rule("/api/v1/orders", defaultIdempotencyTTL),
	rule("/api/v1/orders/*/transitions", defaultIdempotencyTTL),
	rule("/api/v1/orders/*/archive", defaultIdempotencyTTL),
	rule("/api/v1/payments/*/proof", defaultIdempotencyTTL),
	rule("/api/v1/admin/coupons", defaultIdempotencyTTL),
	rule("/api/v1/admin/coupons/*/active", defaultIdempotencyTTL),

	// money movement
	rule("/api/v1/orders/*/payments", criticalIdempotencyTTL),
	rule("/api/v1/payments/confirm", criticalIdempotencyTTL),
	rule("/api/v1/admin/payments/*/review", criticalIdempotencyTTL),
	rule("/api/v1/orders/*/refunds", criticalIdempotencyTTL),
	rule("/api/v1/admin/refunds/*/*", criticalIdempotencyTTL),
	rule("/api/v1/vendors/*/payouts", criticalIdempotencyTTL),
	rule("/api/v1/admin/payouts/approve-batch", criticalIdempotencyTTL),
	rule("/api/v1/admin/payouts/*/*", criticalIdempotencyTTL),
}

// idempotencyRecord is stored under the key. A record without a status is
// the in-flight marker of a request still being handled.
type idempotencyRecord struct {
	Status      int    `json:"status,omitempty"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (r idempotencyRecord) inFlight() bool { return r.Status == 0 }

// Idempotency replays the first response for a repeated Idempotency-Key on
// mutating routes. Keys are scoped to actor, role, method and path; reusing a
// key with a different body is rejected. 5xx and 429 responses are not
// stored so the caller can retry under the same key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ttl, ok := routeTTL(r.Method, requestPath(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			marker := idempotencyRecord{RequestHash: hashBody(body)}
			key := store.IdempotencyKey(buildScope(r), clientKey)

			existing, acquired, err := acquire(ctx, store, key, marker)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if !acquired {
				switch {
				case existing.RequestHash != marker.RequestHash:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.inFlight():
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is in progress"))
				default:
					replay(w, existing)
				}
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := defaultStatus(rec.status)
			if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
				if delErr := store.Del(ctx, key); delErr != nil {
					logError(ctx, logg, "release idempotency key", delErr)
				}
				return
			}

			done := idempotencyRecord{
				Status:      status,
				Body:        base64.StdEncoding.EncodeToString(rec.body.Bytes()),
				ContentType: rec.Header().Get("Content-Type"),
				RequestHash: marker.RequestHash,
			}
			payload, err := json.Marshal(done)
			if err != nil {
				logError(ctx, logg, "marshal idempotency record", err)
				return
			}
			if err := store.Set(ctx, key, string(payload), ttl); err != nil {
				logError(ctx, logg, "persist idempotency record", err)
			}
		})
	}
}

// acquire writes the in-flight marker, or returns the record already held
// under key.
func acquire(ctx context.Context, store pkgredis.IdempotencyStore, key string, marker idempotencyRecord) (idempotencyRecord, bool, error) {
	payload, err := json.Marshal(marker)
	if err != nil {
		return idempotencyRecord{}, false, err
	}
	for attempt := 0; attempt < 2; attempt++ {
		set, err := store.SetNX(ctx, key, string(payload), inFlightTTL)
		if err != nil {
			return idempotencyRecord{}, false, err
		}
		if set {
			return marker, true, nil
		}
		stored, err := store.Get(ctx, key)
		if err != nil && !errors.Is(err, redis.Nil) {
			return idempotencyRecord{}, false, err
		}
		if stored == "" {
			// expired between the two calls
			continue
		}
		var existing idempotencyRecord
		if err := json.Unmarshal([]byte(stored), &existing); err != nil {
			return idempotencyRecord{}, false, err
		}
		return existing, false, nil
	}
	return marker, false, nil
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{
		ActorIDFromContext(r.Context()).String(),
		RoleFromContext(r.Context()).String(),
		r.Method,
		r.URL.Path,
	}, "|")
}

func replay(w http.ResponseWriter, record idempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

// requestPath is matched against the rules instead of the chi route pattern,
// which is still partial while group middleware runs.
func requestPath(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	return r.URL.Path
}

func routeTTL(method, path string) (time.Duration, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return 0, false
	}
	for _, rule := range idempotencyRules {
		if rule.method == method && matchSegments(rule.segments, segments) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, segments []string) bool {
	if len(pattern) != len(segments) {
		return false
	}
	for i, p := range pattern {
		if p != "*" && p != segments[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
