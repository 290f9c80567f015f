package cache

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

const jsonContentType = "application/json; charset=utf-8"

// Middleware serves anonymous GET requests under the given path prefixes
// from the store and records fresh 200 JSON responses. Any successful
// write request purges the whole store, so cached pages never outlive a
// mutation.
func (s *Store) Middleware(prefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isWrite(c.Request.Method) {
			c.Next()
			if len(c.Errors) == 0 && c.Writer.Status() < http.StatusBadRequest {
				if err := s.Clear(); err != nil {
					slog.Warn("Failed to clear response cache", "error", err)
				}
			}
			return
		}

		// Authenticated readers see their own drafts; only anonymous
		// responses are shared.
		if c.Request.Method != http.MethodGet || c.GetHeader("Authorization") != "" || !hasPrefix(c.Request.URL.Path, prefixes) {
			c.Next()
			return
		}

		key := Key(c.Request.URL.Path, c.Request.URL.RawQuery)
		if cached, found := s.Read(key); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, jsonContentType, cached)
			c.Abort()
			return
		}

		gen := s.Generation()
		c.Header("X-Cache", "MISS")
		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if len(c.Errors) == 0 && c.Writer.Status() == http.StatusOK &&
			strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "application/json") {
			stored, err := s.WriteIfCurrent(gen, key, writer.body.Bytes())
			if err != nil {
				slog.Warn("Failed to write response cache", "path", c.Request.URL.Path, "error", err)
			} else if !stored {
				slog.Debug("Skipped stale response cache write", "path", c.Request.URL.Path)
			}
		}
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Sweep removes expired entries every interval until ctx is done.
func (s *Store) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ClearOld(); err != nil {
				slog.Warn("Failed to sweep response cache", "error", err)
			}
		}
	}
}
