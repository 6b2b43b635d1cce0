package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	idempotencyTTL  = 24 * time.Hour
	inFlightTTL     = 30 * time.Second
	maxHashedBodyKB = 1 << 10
)

// storedResponse is what a retry with the same key gets back.
type storedResponse struct {
	Fingerprint string          `json:"fingerprint"`
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

// captureWriter tees the response body so it can be stored.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a caller retries a mutating
// request with the same Idempotency-Key. Keys are scoped to the caller and
// route, so it must run after authentication. Reusing a key with a different
// body is rejected, as is a retry that races the first attempt. A nil client
// disables it.
func Idempotency(client *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if client == nil || key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := "idempotency:" + CallerID(c) + ":" + c.Request.Method + ":" + c.FullPath() + ":" + key

		fp, err := fingerprint(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}

		stored, err := loadResponse(ctx, client, storeKey)
		switch {
		case err == nil:
			if stored.Fingerprint != fp {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency key reused with a different request"})
				return
			}
			c.Header(ReplayedHeader, "true")
			c.Data(stored.StatusCode, stored.ContentType, stored.Body)
			c.Abort()
			return
		case !errors.Is(err, redis.Nil):
			// Redis down: serve without replay protection.
			c.Next()
			return
		}

		lockKey := storeKey + ":inflight"
		ok, err := client.SetNX(ctx, lockKey, fp, inFlightTTL).Result()
		if err == nil && !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "a request with this idempotency key is in progress"})
			return
		}
		if err == nil {
			defer client.Del(context.WithoutCancel(ctx), lockKey)
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// 5xx responses may succeed on retry.
		status := w.Status()
		if status < 200 || status >= 500 {
			return
		}
		_ = saveResponse(context.WithoutCancel(ctx), client, storeKey, &storedResponse{
			Fingerprint: fp,
			StatusCode:  status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
	}
}

func mutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// fingerprint hashes the request body and restores it for the handler.
func fingerprint(c *gin.Context) (string, error) {
	h := sha256.New()
	if c.Request.Body != nil {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxHashedBodyKB<<10))
		if err != nil {
			return "", err
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadResponse(ctx context.Context, client *redis.Client, key string) (*storedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var r storedResponse
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func saveResponse(ctx context.Context, client *redis.Client, key string, r *storedResponse) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, idempotencyTTL).Err()
}
