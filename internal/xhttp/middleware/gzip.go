package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/garrettladley/rally/internal/xhttp"
)

const (
	defaultGzipMinSize = 1024
	gzipEncoding       = "gzip"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(nil)
	},
}

type gzipMode int

const (
	gzipBuffering gzipMode = iota
	gzipPlain
	gzipCompressed
)

// gzipResponseWriter buffers until minSize bytes are written, then commits
// to either a compressed or a plain body.
type gzipResponseWriter struct {
	http.ResponseWriter
	minSize int
	status  int
	mode    gzipMode
	buf     bytes.Buffer
	zw      *gzip.Writer
}

var (
	_ http.ResponseWriter = (*gzipResponseWriter)(nil)
	_ http.Flusher        = (*gzipResponseWriter)(nil)
	_ io.Closer           = (*gzipResponseWriter)(nil)
)

func (g *gzipResponseWriter) WriteHeader(code int) {
	if g.mode == gzipBuffering {
		g.status = code
	}
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	switch g.mode {
	case gzipCompressed:
		n, err := g.zw.Write(b)
		if err != nil {
			return n, fmt.Errorf("failed to write gzip: %w", err)
		}
		return n, nil
	case gzipPlain:
		return g.ResponseWriter.Write(b)
	}

	g.buf.Write(b)
	if g.buf.Len() < g.minSize {
		return len(b), nil
	}
	// the handler already chose an encoding
	if g.Header().Get(xhttp.ContentEncoding) != "" {
		return len(b), g.commit(gzipPlain)
	}
	return len(b), g.commit(gzipCompressed)
}

func (g *gzipResponseWriter) commit(mode gzipMode) error {
	g.mode = mode
	if mode == gzipCompressed {
		g.Header().Set(xhttp.ContentEncoding, gzipEncoding)
		g.Header().Del(xhttp.ContentLength)
	}
	g.ResponseWriter.WriteHeader(g.status)

	var dst io.Writer = g.ResponseWriter
	if mode == gzipCompressed {
		g.zw = gzipWriterPool.Get().(*gzip.Writer)
		g.zw.Reset(g.ResponseWriter)
		dst = g.zw
	}

	if _, err := dst.Write(g.buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write buffered response: %w", err)
	}
	g.buf.Reset()
	return nil
}

// Close flushes a body that never reached minSize uncompressed and
// returns the gzip writer to the pool.
func (g *gzipResponseWriter) Close() error {
	if g.mode == gzipBuffering {
		return g.commit(gzipPlain)
	}
	if g.zw == nil {
		return nil
	}

	err := g.zw.Close()
	gzipWriterPool.Put(g.zw)
	g.zw = nil
	if err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}

func (g *gzipResponseWriter) Flush() {
	if g.zw != nil {
		_ = g.zw.Flush()
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (g *gzipResponseWriter) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}

// Gzip compresses responses of at least 1KB for clients that accept it.
func Gzip(next http.Handler) http.Handler {
	return GzipMinSize(defaultGzipMinSize)(next)
}

func GzipMinSize(minSize int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !clientAcceptsGzip(r) || xhttp.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add(xhttp.Vary, xhttp.AcceptEncoding)

			gw := &gzipResponseWriter{
				ResponseWriter: w,
				minSize:        minSize,
				status:         http.StatusOK,
			}
			defer gw.Close() //nolint:errcheck

			next.ServeHTTP(gw, r)
		})
	}
}

func clientAcceptsGzip(r *http.Request) bool {
	for part := range strings.SplitSeq(r.Header.Get(xhttp.AcceptEncoding), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), gzipEncoding) {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}
