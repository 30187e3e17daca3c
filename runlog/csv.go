package runlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

var csvHeader = []string{"step", "train_loss", "val_loss", "elapsed_ms"}

// CSVRecorder appends one row per Entry and flushes after each write so the
// file can be tailed during a long run.
type CSVRecorder struct {
	f *os.File
	w *csv.Writer
}

// NewCSV creates (or truncates) path and writes the header.
func NewCSV(path string) (*CSVRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runlog: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("runlog: %w", err)
	}
	r := &CSVRecorder{f: f, w: csv.NewWriter(f)}
	if err := r.write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *CSVRecorder) Record(e Entry) error {
	return r.write([]string{
		strconv.Itoa(e.Step),
		strconv.FormatFloat(e.TrainLoss, 'f', 4, 64),
		strconv.FormatFloat(e.ValLoss, 'f', 4, 64),
		strconv.FormatInt(e.Elapsed.Milliseconds(), 10),
	})
}

func (r *CSVRecorder) write(row []string) error {
	if err := r.w.Write(row); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	r.w.Flush()
	if err := r.w.Error(); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	return nil
}

func (r *CSVRecorder) Close() error {
	r.w.Flush()
	werr := r.w.Error()
	cerr := r.f.Close()
	if werr != nil {
		return fmt.Errorf("runlog: %w", werr)
	}
	return cerr
}
