package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var csvHeader = []string{"url", "comment", "timestamp"}

// CSVStore keeps the ledger as a spreadsheet-friendly CSV file with a header
// row written on first creation.
type CSVStore struct {
	path string
}

// NewCSVStore creates a CSV store at path. The file is created lazily.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Load reads every row. A missing file is an empty ledger.
func (s *CSVStore) Load(ctx context.Context) ([]Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var entries []Entry
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}

		e := Entry{URL: rec[0]}
		if len(rec) > 1 {
			e.Comment = rec[1]
		}
		if len(rec) > 2 {
			if ts, err := time.Parse(time.RFC3339, rec[2]); err == nil {
				e.Timestamp = ts
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Append writes one row, adding the header if the file is new or empty.
func (s *CSVStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.Write([]string{e.URL, e.Comment, e.Timestamp.UTC().Format(time.RFC3339)}); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// Close is a no-op; every Append opens and closes the file.
func (s *CSVStore) Close() error { return nil }

func isHeader(rec []string) bool {
	return len(rec) >= 1 && rec[0] == csvHeader[0]
}
