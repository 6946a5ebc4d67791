package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit rejects request bodies larger than the given size. Interview
// answers and chat payloads are short, so the limit can be tight.
//
// The size string accepts K, M, and G suffixes ("512K", "1M"); a bare number
// means bytes. Unparseable input falls back to 1 MB.
func BodyLimit(limitStr string) echo.MiddlewareFunc {
	limit := parseLimit(limitStr)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			// A declared Content-Length over the limit is rejected before
			// reading anything.
			if req.ContentLength > limit {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]interface{}{
					"ok":    false,
					"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
				})
			}

			// Chunked bodies have no Content-Length, so the reader itself
			// enforces the limit.
			req.Body = &cappedBody{inner: req.Body, limit: limit}
			return next(c)
		}
	}
}

// cappedBody counts bytes as the handler reads and fails the read once the
// count passes the limit.
type cappedBody struct {
	inner io.ReadCloser
	limit int64
	read  int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.read > b.limit {
		return 0, errBodyTooLarge()
	}
	// Read at most one byte past the limit so overflow is detectable
	// without buffering.
	if room := b.limit - b.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := b.inner.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		return 0, errBodyTooLarge()
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.inner.Close() }

func errBodyTooLarge() error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
}

func parseLimit(s string) int64 {
	const fallback = 1 << 20

	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}

	var shift uint
	for suffix, by := range map[string]uint{"K": 10, "M": 20, "G": 30} {
		if rest, ok := strings.CutSuffix(strings.TrimSuffix(s, "B"), suffix); ok {
			s, shift = rest, by
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return fallback
	}
	return n << shift
}
