// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides the request correlation and identity middleware plus the
// panic-safe recovery handler:
//
//   - RequestID() propagates or generates X-Request-ID.
//   - ClientID() resolves the caller identity that scopes idempotency keys and
//     rate-limit buckets.
//   - Recovery() converts panics into JSON 500 responses.
//   - LoggerFrom() returns the request-scoped logger attached by
//     RedactingLogger.
//
// Recommended order: RequestID, ClientID, RedactingLogger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	// ClientIDKey is the Gin context key holding the resolved client id.
	ClientIDKey = "clientID"
	// HeaderClientID identifies the calling client. There is no
	// authentication; the value only partitions idempotency keys and buckets.
	HeaderClientID = "X-Client-ID"
	// AnonymousClient is used when no client id is supplied.
	AnonymousClient = "anonymous"

	maxClientIDLen    = 128
	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation identifier per request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// ClientID stores the X-Client-ID header under ClientIDKey, falling back to
// AnonymousClient. Over-long values are truncated.
func ClientID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderClientID))
		if len(id) > maxClientIDLen {
			id = id[:maxClientIDLen]
		}
		if id == "" {
			id = AnonymousClient
		}
		c.Set(ClientIDKey, id)
		c.Next()
	}
}

// ClientIDFrom returns the client id stored by ClientID, reading the header
// directly when the middleware is not installed.
func ClientIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ClientIDKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderClientID)); h != "" {
			return h
		}
	}
	return AnonymousClient
}

// Recovery intercepts panics, logs a stack trace, and returns a JSON 500 error
// carrying the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid, _ := c.Get(requestIDKey)
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", asString(rid)).
					Msg("panic recovered")

				if !c.Writer.Written() {
					c.Header(requestIDHeader, asString(rid))
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": asString(rid),
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped zerolog.Logger, or a copy of the
// global logger when none was attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get("logger"); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
