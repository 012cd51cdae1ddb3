// Package ticklog archives per-tick summaries as hourly-rotated,
// zstd-compressed JSON lines, and graph snapshots as single compressed JSON
// documents.
package ticklog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/gridsim/internal/engine"
)

// Extension is the suffix of every tick-log archive.
const Extension = ".jsonl.zst"

// Writer appends summaries to <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst.
type Writer struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	written int
}

// NewWriter creates a writer. Files are opened lazily on the first write.
func NewWriter(dir, prefix string) *Writer {
	return &Writer{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
	}
}

// WriteSummary appends one summary line.
func (w *Writer) WriteSummary(s engine.Summary) error {
	return w.write(s)
}

// Written returns the number of lines written since the writer was created.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes and closes the current archive.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode tick log entry: %w", err)
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.written++
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tick log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open tick log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", w.prefix, hour, Extension))
}

// ReadAll decodes every summary in one archive. A file appended across
// restarts holds several zstd frames; the decoder reads them in sequence.
func ReadAll(path string) ([]engine.Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer dec.Close()

	var out []engine.Summary
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var s engine.Summary
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return out, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// Files lists the archives in dir for prefix, oldest first. An empty prefix
// matches every archive.
func Files(dir, prefix string) ([]string, error) {
	pattern := "*" + Extension
	if prefix != "" {
		pattern = prefix + "-" + pattern
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	// The hour stamp sorts lexically within one prefix.
	sort.Strings(matches)
	return matches, nil
}

// ── Graph snapshots ────────────────────────────────────────────────

// WriteGraph stores g as a zstd-compressed JSON document, replacing any
// existing file atomically.
func WriteGraph(path string, g engine.GraphView) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadGraph loads a snapshot written by WriteGraph.
func ReadGraph(path string) (engine.GraphView, error) {
	var g engine.GraphView
	compressed, err := os.ReadFile(path)
	if err != nil {
		return g, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return g, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return g, fmt.Errorf("decompress %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return g, fmt.Errorf("decode %s: %w", path, err)
	}
	return g, nil
}

// SnapshotPath names the graph snapshot for a tick under dir.
func SnapshotPath(dir, prefix string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s-graph-%010d.json.zst", prefix, tick))
}
