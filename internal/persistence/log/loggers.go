// Package log keeps the server's event log: hourly segments of
// zstd-compressed JSON lines.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// Entry is one server event as stored on disk.
type Entry struct {
	Time    time.Time `json:"time"`
	Tick    uint64    `json:"tick"`
	Kind    string    `json:"kind"`
	Session string    `json:"session,omitempty"`
	Alias   string    `json:"alias,omitempty"`
	Message string    `json:"message,omitempty"`
}

// SegmentName is the file holding the entries written during t's hour.
func SegmentName(t time.Time) string {
	return fmt.Sprintf("events-%s.jsonl.zst", t.UTC().Format(hourLayout))
}

// EventLogger appends entries to the segment of the current hour. Each
// write is flushed through the encoder, so a segment can be read while
// the server is still writing it.
type EventLogger struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	seg     *segment
	entries uint64
}

type segment struct {
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{dir: dir, now: time.Now}
}

func (l *EventLogger) WriteEvent(e Entry) error {
	now := l.now().UTC()
	if e.Time.IsZero() {
		e.Time = now
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if hour := now.Format(hourLayout); l.seg == nil || l.seg.hour != hour {
		if err := l.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(l.dir, now)
		if err != nil {
			return err
		}
		l.seg = seg
	}
	if err := l.seg.append(line); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(l.seg.f.Name()), err)
	}
	l.entries++
	return nil
}

// Entries counts the entries written since the logger was created.
func (l *EventLogger) Entries() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *EventLogger) closeLocked() error {
	if l.seg == nil {
		return nil
	}
	err := l.seg.close()
	l.seg = nil
	return err
}

// openSegment opens t's segment for appending. Reopening after a restart
// starts a new zstd frame in the same file.
func openSegment(dir string, t time.Time) (*segment, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, SegmentName(t)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{
		hour: t.Format(hourLayout),
		f:    f,
		enc:  enc,
		buf:  bufio.NewWriterSize(enc, 32*1024),
	}, nil
}

func (s *segment) append(line []byte) error {
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	if err := s.buf.WriteByte('\n'); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.enc.Flush()
}

func (s *segment) close() error {
	flushErr := s.buf.Flush()
	encErr := s.enc.Close()
	fileErr := s.f.Close()
	for _, err := range []error{flushErr, encErr, fileErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
