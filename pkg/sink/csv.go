package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/listing"
)

// ErrNotStarted is returned by Append before Begin.
var ErrNotStarted = errors.New("output not started")

// pageFile is the part of *os.File the CSV output needs.
type pageFile interface {
	io.Writer
	io.Seeker
	Sync() error
	Truncate(size int64) error
	Close() error
}

// CSVOutput writes listings to a CSV file, one fsync per page.
type CSVOutput struct {
	path string
	file pageFile
}

// NewCSVOutput returns an output for path. Nothing touches the filesystem until Begin.
func NewCSVOutput(path string) *CSVOutput {
	return &CSVOutput{path: path}
}

// Begin creates parent directories, truncates the file and writes the header.
func (o *CSVOutput) Begin(ctx context.Context) error {
	if o.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(o.Location()), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	if err := writeRecords(f, [][]string{listing.Columns}); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	o.file = f
	return nil
}

// Append writes the page's rows in a single write and fsyncs the file.
func (o *CSVOutput) Append(ctx context.Context, page int, rows []listing.Listing) error {
	if o.file == nil {
		return ErrNotStarted
	}
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.Record())
	}

	offset, err := o.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("append page %d: %w", page, err)
	}

	if err := writeRecords(o.file, records); err != nil {
		if rerr := o.rollback(offset); rerr != nil {
			return fmt.Errorf("append page %d: %w (rollback: %v)", page, err, rerr)
		}
		return fmt.Errorf("append page %d: %w", page, err)
	}

	commitDuration.WithLabelValues("csv").Observe(time.Since(start).Seconds())
	rowsWrittenTotal.WithLabelValues("csv").Add(float64(len(rows)))
	return nil
}

// Location returns the absolute path of the CSV file.
func (o *CSVOutput) Location() string {
	abs, err := filepath.Abs(o.path)
	if err != nil {
		return o.path
	}
	return abs
}

// Close closes the file. It is safe to call when Begin never ran.
func (o *CSVOutput) Close() error {
	if o.file == nil {
		return nil
	}
	err := o.file.Close()
	o.file = nil
	return err
}

// rollback cuts the file back to offset, dropping a partially written page.
func (o *CSVOutput) rollback(offset int64) error {
	if err := o.file.Truncate(offset); err != nil {
		return err
	}
	if _, err := o.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	return o.file.Sync()
}

// writeRecords encodes records into memory first so the file sees one write
// of whole rows, then syncs.
func writeRecords(f pageFile, records [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}
