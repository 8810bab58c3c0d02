package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kvquery/kvquery/internal/ratelimit"
)

// PeekTableMiddleware reads the request body far enough to learn the
// query's table name, stashes it in the gin context for
// RateLimitMiddleware, and restores the body so the query handler can
// still bind it in full. The teacher's rate limiter keys on route
// path; this engine exposes a single POST /api/v1/query route, so the
// table name has to come out of the body instead.
func PeekTableMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			BadRequestError(c, "unable to read request body")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var probe struct {
			Table json.RawMessage `json:"table"`
		}
		if json.Unmarshal(body, &probe) == nil {
			var name string
			if json.Unmarshal(probe.Table, &name) == nil && name != "" {
				c.Set(ctxTableKey, name)
			}
		}
		c.Next()
	}
}

// RateLimitMiddleware rate-limits requests by the table PeekTableMiddleware
// found in the body, falling back to a "default" bucket for requests
// with no decodable table name (health checks, malformed bodies the
// handler will reject anyway).
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		table, _ := c.Get(ctxTableKey)
		name, _ := table.(string)
		if name == "" {
			name = "default"
		}

		result := limiter.Allow(name)
		if !result.Allowed {
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			TooManyRequestsError(c, fmt.Sprintf("rate limit exceeded for %s, retry after %d seconds", result.LimitType, retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}

// MaxBodySizeMiddleware rejects requests whose declared content length
// exceeds maxBytes and caps the body reader at maxBytes regardless.
func MaxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			PayloadTooLargeError(c, fmt.Sprintf("request body too large, maximum %d bytes", maxBytes))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

const (
	// DefaultBodyLimit bounds an ordinary query request.
	DefaultBodyLimit = 1 * 1024 * 1024
	// ctxTableKey is the gin context key PeekTableMiddleware stashes the
	// decoded table name under, so RateLimitMiddleware can key on it
	// without re-parsing the body.
	ctxTableKey = "kvquery.table"
)
