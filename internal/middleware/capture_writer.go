package middleware

import (
	"bufio"
	"bytes"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

const noWritten = -1

// captureWriter buffers the response so it can be recorded and then replayed
// onto the real writer unchanged. Flushing or outgrowing the budget switches
// it to pass-through for the rest of the exchange.
type captureWriter struct {
	gin.ResponseWriter

	body   bytes.Buffer
	budget int64
	status int
	size   int

	passthrough bool // bytes go straight to the real writer
	overflow    bool // recorded body is no longer complete
	hijacked    bool
}

func newCaptureWriter(w gin.ResponseWriter, budget int64) *captureWriter {
	return &captureWriter{ResponseWriter: w, budget: budget, status: http.StatusOK, size: noWritten}
}

func (w *captureWriter) WriteHeader(code int) {
	if code <= 0 || w.Written() {
		return
	}
	w.status = code
	if w.passthrough {
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *captureWriter) WriteHeaderNow() {
	if !w.Written() {
		w.size = 0
	}
	if w.passthrough {
		w.ResponseWriter.WriteHeaderNow()
	}
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.WriteHeaderNow()
	w.record(b)
	if !w.passthrough {
		if w.overflow {
			if err := w.commit(); err != nil {
				return 0, err
			}
		} else {
			w.size += len(b)
			return len(b), nil
		}
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *captureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// record keeps a copy of b while the buffer stays within budget.
func (w *captureWriter) record(b []byte) {
	if w.overflow {
		return
	}
	if int64(w.body.Len()+len(b)) > w.budget {
		w.overflow = true
		if w.passthrough {
			w.body.Reset()
		}
		return
	}
	w.body.Write(b)
}

func (w *captureWriter) Status() int {
	return w.status
}

func (w *captureWriter) Size() int {
	return w.size
}

func (w *captureWriter) Written() bool {
	return w.size != noWritten
}

func (w *captureWriter) Flush() {
	w.WriteHeaderNow()
	if err := w.commit(); err != nil {
		return
	}
	w.ResponseWriter.Flush()
}

func (w *captureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := w.ResponseWriter.Hijack()
	if err == nil {
		w.hijacked = true
		w.passthrough = true
		w.status = http.StatusSwitchingProtocols
		if w.size < 0 {
			w.size = 0
		}
	}
	return conn, rw, err
}

// commit writes the status and everything buffered so far, then switches to pass-through.
func (w *captureWriter) commit() error {
	if w.passthrough {
		return nil
	}
	w.passthrough = true
	w.ResponseWriter.WriteHeader(w.status)
	if !w.Written() {
		return nil
	}
	if w.body.Len() > 0 {
		if _, err := w.ResponseWriter.Write(w.body.Bytes()); err != nil {
			return err
		}
	} else {
		w.ResponseWriter.WriteHeaderNow()
	}
	if w.overflow {
		w.body.Reset()
	}
	return nil
}

// finish copies a still-buffered response onto the real writer.
func (w *captureWriter) finish() {
	if w.hijacked {
		return
	}
	_ = w.commit()
}

// recordedBody is the captured response, or nil when it outgrew the budget.
func (w *captureWriter) recordedBody() []byte {
	if w.overflow {
		return nil
	}
	return w.body.Bytes()
}
