package mw

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
	stored  time.Time
}

type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// cacheKey is the path plus the query with its parameters sorted, so
// ?a=1&b=2 and ?b=2&a=1 share an entry.
func cacheKey(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

// Cache keeps successful GET responses for ttl. Entries are shared by every
// caller, so it only belongs on routes whose body does not depend on who is
// asking (the catalogs). A request with Cache-Control: no-cache skips the
// lookup and stores the fresh response.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c.Request)
		bypass := strings.Contains(strings.ToLower(c.GetHeader("Cache-Control")), "no-cache")
		if v, found := store.Get(key); found && !bypass {
			cached := v.(cachedResponse)
			h := c.Writer.Header()
			for k, vals := range cached.headers {
				h[k] = vals
			}
			h.Set("X-Cache", "HIT")
			h.Set("Age", strconvSeconds(time.Since(cached.stored)))
			c.Writer.WriteHeader(cached.status)
			c.Writer.Write(cached.body)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")
		rec := &recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status < 200 || status >= 300 {
			return
		}
		headers := rec.Header().Clone()
		headers.Del("X-Cache")
		store.Set(key, cachedResponse{status: status, headers: headers, body: rec.body.Bytes(), stored: time.Now()}, ttl)
	}
}

func strconvSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.Itoa(int(d / time.Second))
}
