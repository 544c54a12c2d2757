// Package corelog provides the ambient logging used throughout the
// substrate, wrapping github.com/joeycumines/logiface with a minimal
// JSON-line Event backend and once-guarded default-instance
// configuration.
package corelog

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// jsonEvent is a minimal logiface.Event implementation that accumulates
// fields into a map and marshals them as one JSON line per event.
type jsonEvent struct {
	logiface.UnimplementedEvent

	level  logiface.Level
	fields map[string]any
	msg    string
	err    error
}

func (e *jsonEvent) Level() logiface.Level { return e.level }

func (e *jsonEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any, 4)
	}
	e.fields[key] = val
}

func (e *jsonEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

func (e *jsonEvent) AddError(err error) bool {
	e.err = err
	return true
}

func (e *jsonEvent) AddString(key string, val string) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddInt(key string, val int) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddInt64(key string, val int64) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddUint64(key string, val uint64) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddFloat32(key string, val float32) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddFloat64(key string, val float64) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddBool(key string, val bool) bool {
	e.AddField(key, val)
	return true
}

func (e *jsonEvent) AddTime(key string, val time.Time) bool {
	e.AddField(key, val.Format(time.RFC3339Nano))
	return true
}

func (e *jsonEvent) AddDuration(key string, val time.Duration) bool {
	e.AddField(key, val.String())
	return true
}

func (e *jsonEvent) AddBase64Bytes(key string, val []byte, enc *base64.Encoding) bool {
	e.AddField(key, enc.EncodeToString(val))
	return true
}

// eventFactory implements logiface.EventFactory[*jsonEvent].
type eventFactory struct{}

func (eventFactory) NewEvent(level logiface.Level) *jsonEvent {
	return &jsonEvent{level: level}
}

// lineWriter implements logiface.Writer[*jsonEvent], serializing each
// event as one JSON object per line.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{w: w}
}

func (lw *lineWriter) Write(e *jsonEvent) error {
	record := make(map[string]any, len(e.fields)+3)
	for k, v := range e.fields {
		record[k] = v
	}
	record["level"] = e.level.String()
	if e.msg != "" {
		record["msg"] = e.msg
	}
	if e.err != nil {
		record["error"] = e.err.Error()
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err = lw.w.Write(b)
	return err
}

// DefaultWriter returns a Writer that serializes to os.Stderr.
func DefaultWriter() logiface.Writer[*jsonEvent] {
	return newLineWriter(os.Stderr)
}

// NewWriter returns a Writer that serializes to w.
func NewWriter(w io.Writer) logiface.Writer[*jsonEvent] {
	return newLineWriter(w)
}
