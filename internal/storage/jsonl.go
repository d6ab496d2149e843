package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/IshaanNene/ListingScout/internal/types"
)

// JSONLWriter exports listings as newline-delimited JSON (one object per line).
type JSONLWriter struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	enc    *json.Encoder
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLWriter creates the output file (and its directory).
func NewJSONLWriter(outputPath string, logger *slog.Logger) (*JSONLWriter, error) {
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	buf := bufio.NewWriter(f)
	return &JSONLWriter{
		path:   outputPath,
		file:   f,
		buf:    buf,
		enc:    json.NewEncoder(buf),
		logger: logger.With("component", "jsonl_writer"),
	}, nil
}

// Write appends listings to the file.
func (w *JSONLWriter) Write(listings []*types.Listing) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, l := range listings {
		if err := w.enc.Encode(l); err != nil {
			return fmt.Errorf("encode JSONL: %w", err)
		}
		w.count++
	}
	return nil
}

// Count returns the number of listings written.
func (w *JSONLWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	w.file = nil
	w.logger.Info("JSONL written", "path", w.path, "listings", w.count)
	if flushErr != nil {
		return fmt.Errorf("flush JSONL: %w", flushErr)
	}
	return closeErr
}

// ReadJSONL decodes listings from newline-delimited JSON. Blank lines are
// skipped; a malformed line fails with its line number.
func ReadJSONL(r io.Reader) ([]*types.Listing, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var out []*types.Listing
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var l types.Listing
		if err := json.Unmarshal(b, &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, &l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read JSONL: %w", err)
	}
	return out, nil
}
