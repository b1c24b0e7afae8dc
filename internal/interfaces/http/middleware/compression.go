package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// minCompressSize - ответы короче этого порога отдаются как есть
const minCompressSize = 1024

var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, 5)
		return w
	},
}

// gzipResponseWriter копит начало ответа и решает о сжатии,
// когда набрано minCompressSize байт или обработчик завершился.
type gzipResponseWriter struct {
	http.ResponseWriter
	gz      *gzip.Writer
	buf     []byte
	status  int
	decided bool
}

func (w *gzipResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *gzipResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.gz != nil {
		return w.gz.Write(b)
	}
	if w.decided {
		return w.ResponseWriter.Write(b)
	}

	w.buf = append(w.buf, b...)
	if len(w.buf) < minCompressSize {
		return len(b), nil
	}
	if err := w.start(true); err != nil {
		return 0, err
	}
	return len(b), nil
}

// start отправляет заголовки и накопленный буфер
func (w *gzipResponseWriter) start(compress bool) error {
	w.decided = true

	header := w.Header()
	if compress && header.Get("Content-Encoding") == "" && bodyAllowed(w.status) {
		gz := gzipWriterPool.Get().(*gzip.Writer)
		gz.Reset(w.ResponseWriter)
		w.gz = gz
		header.Set("Content-Encoding", "gzip")
		header.Del("Content-Length")
	}
	w.ResponseWriter.WriteHeader(w.status)

	if len(w.buf) == 0 {
		return nil
	}
	var err error
	if w.gz != nil {
		_, err = w.gz.Write(w.buf)
	} else {
		_, err = w.ResponseWriter.Write(w.buf)
	}
	w.buf = nil
	return err
}

func (w *gzipResponseWriter) finish() {
	if !w.decided && w.status != 0 {
		_ = w.start(false)
	}
	if w.gz != nil {
		_ = w.gz.Close()
		w.gz.Reset(io.Discard)
		gzipWriterPool.Put(w.gz)
		w.gz = nil
	}
}

func bodyAllowed(status int) bool {
	return status >= http.StatusOK && status != http.StatusNoContent && status != http.StatusNotModified
}

// Compression сжимает gzip ответы чтения от minCompressSize байт.
// Короткие ответы, в том числе ошибки, уходят без сжатия.
func Compression(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		// Upgrade requests need the raw connection
		if strings.EqualFold(r.Header.Get("Connection"), "upgrade") {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Accept-Encoding")

		gzw := &gzipResponseWriter{ResponseWriter: w}
		defer gzw.finish()

		next.ServeHTTP(gzw, r)
	})
}
