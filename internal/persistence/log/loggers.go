package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"brainlink.ai/internal/brain"
	"brainlink.ai/internal/gate"
)

// DefaultSegmentBytes caps the uncompressed size of one journal segment.
const DefaultSegmentBytes = 32 << 20

const hourLayout = "2006-01-02-15"

// Journal appends entries of type T as JSON lines to zstd segments named
// <prefix>-<hour>-<seq>.jsonl.zst. A new segment starts when the UTC hour
// changes, when the current one reaches its size cap, and on every restart.
type Journal[T any] struct {
	dir      string
	prefix   string
	maxBytes int64
	now      func() time.Time

	mu  sync.Mutex
	seg *segment
}

func NewJournal[T any](dir, prefix string) *Journal[T] {
	return &Journal[T]{dir: dir, prefix: prefix, maxBytes: DefaultSegmentBytes, now: time.Now}
}

func (j *Journal[T]) Append(v T) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	hour := j.now().UTC().Format(hourLayout)
	if j.seg == nil || j.seg.hour != hour || j.seg.full(len(line), j.maxBytes) {
		if err := j.rollLocked(hour); err != nil {
			return err
		}
	}
	return j.seg.append(line)
}

func (j *Journal[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seg == nil {
		return nil
	}
	err := j.seg.close()
	j.seg = nil
	return err
}

func (j *Journal[T]) rollLocked(hour string) error {
	seq := 0
	if j.seg != nil {
		if j.seg.hour == hour {
			seq = j.seg.seq + 1
		}
		err := j.seg.close()
		j.seg = nil
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	for {
		seg, err := createSegment(j.path(hour, seq))
		if errors.Is(err, os.ErrExist) {
			seq++
			continue
		}
		if err != nil {
			return err
		}
		seg.hour, seg.seq = hour, seq
		j.seg = seg
		return nil
	}
}

func (j *Journal[T]) path(hour string, seq int) string {
	return filepath.Join(j.dir, fmt.Sprintf("%s-%s-%03d.jsonl.zst", j.prefix, hour, seq))
}

type segment struct {
	hour    string
	seq     int
	written int64

	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

// createSegment fails with os.ErrExist rather than appending to an older
// segment.
func createSegment(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{file: f, zw: zw, buf: bufio.NewWriterSize(zw, 64*1024)}, nil
}

// append writes one line and flushes it through to a complete zstd block, so
// a reader sees every entry while the segment is still open.
func (s *segment) append(line []byte) error {
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.written += int64(len(line))
	return s.zw.Flush()
}

// full reports whether n more bytes would push a non-empty segment past limit.
func (s *segment) full(n int, limit int64) bool {
	return s.written > 0 && s.written+int64(n) > limit
}

func (s *segment) close() error {
	return errors.Join(s.buf.Flush(), s.zw.Close(), s.file.Close())
}

// ResolutionLogger writes one entry per roll (client side).
type ResolutionLogger struct {
	*Journal[gate.JournalEntry]
}

func NewResolutionLogger(dir string) *ResolutionLogger {
	return &ResolutionLogger{NewJournal[gate.JournalEntry](filepath.Join(dir, "resolutions"), "resolutions")}
}

func (l *ResolutionLogger) WriteResolution(e gate.JournalEntry) error { return l.Append(e) }

// DecisionLogger writes one entry per proposal sent (gateway side).
type DecisionLogger struct {
	*Journal[brain.Decision]
}

func NewDecisionLogger(dir string) *DecisionLogger {
	return &DecisionLogger{NewJournal[brain.Decision](filepath.Join(dir, "decisions"), "decisions")}
}

func (l *DecisionLogger) WriteDecision(d brain.Decision) error { return l.Append(d) }
