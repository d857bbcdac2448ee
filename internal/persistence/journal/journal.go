// Package journal is the durable tick log: one compressed JSONL record per
// committed month, rotated yearly. Together with the genesis config it is
// sufficient to rebuild a network bit for bit; the replay tool verifies
// digests straight off these files.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"tessera.estate/internal/sim/network"
)

const monthsPerFile = 12

// Writer appends TickRecords for one network. It implements
// network.TickSink; a write failure is reported to the session's log and
// never fails the tick.
type Writer struct {
	baseDir   string
	networkID string

	mu      sync.Mutex
	curFile int
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, networkID string) *Writer {
	return &Writer{baseDir: baseDir, networkID: networkID, curFile: -1}
}

// AppendTick writes one committed tick and flushes it to disk.
func (w *Writer) AppendTick(rec network.TickRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	file := (rec.Month - 1) / monthsPerFile
	if file != w.curFile {
		if err := w.rotateLocked(file); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(file int) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curFile = file
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
	w.curFile = -1
	return err
}

// pathFor names one year bundle: months 1..12 land in year 1.
func (w *Writer) pathFor(file int) string {
	return filepath.Join(w.baseDir, w.networkID,
		fmt.Sprintf("ticks-Y%04d.jsonl.zst", file+1))
}

// Read streams every journalled tick for a network, in month order, into
// fn. It stops early when fn returns an error.
func Read(baseDir, networkID string, fn func(network.TickRecord) error) error {
	dir := filepath.Join(baseDir, networkID)
	names, err := filepath.Glob(filepath.Join(dir, "ticks-Y*.jsonl.zst"))
	if err != nil {
		return err
	}
	// Glob output is sorted, and the Y%04d naming keeps lexical order
	// equal to month order.
	for _, name := range names {
		if err := readFile(name, fn); err != nil {
			return fmt.Errorf("journal %s: %w", name, err)
		}
	}
	return nil
}

func readFile(path string, fn func(network.TickRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec network.TickRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}
