// Package runlog persists loss estimates taken during training.
package runlog

import (
	"errors"
	"time"
)

// Entry is one train/val loss estimate.
type Entry struct {
	Step      int
	TrainLoss float64
	ValLoss   float64
	Elapsed   time.Duration // since training started
}

type Recorder interface {
	Record(e Entry) error
	Close() error
}

// Open returns the recorders enabled by non-empty paths.
func Open(csvPath, dbPath string) ([]Recorder, error) {
	var recs []Recorder
	if csvPath != "" {
		r, err := NewCSV(csvPath)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	if dbPath != "" {
		r, err := NewSQLite(dbPath)
		if err != nil {
			CloseAll(recs)
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// CloseAll closes every recorder and joins their errors.
func CloseAll(recs []Recorder) error {
	var errs []error
	for _, r := range recs {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}
