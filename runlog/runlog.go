// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package runlog keeps a catalog of the acquisition runs in a local
// bbolt database.
package runlog // import "github.com/go-lpc/ssp/runlog"

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/ssp/device"
	"go.etcd.io/bbolt"
)

var (
	bucketRuns = []byte("runs")

	// ErrNoSuchRun is returned when a run is not in the catalog.
	ErrNoSuchRun = errors.New("runlog: no such run")
)

// Run describes an acquisition run.
type Run struct {
	ID     uint64       `json:"id"`
	Device string       `json:"device"` // location of the module
	Beg    time.Time    `json:"beg"`
	End    time.Time    `json:"end,omitempty"`
	Stats  device.Stats `json:"stats"`
	Output string       `json:"output,omitempty"` // millislice file
	Err    string       `json:"error,omitempty"`  // error that ended the run
}

// Log is a run catalog.
type Log struct {
	db *bbolt.DB
}

// Open opens (or creates) the run catalog at fname.
func Open(fname string) (*Log, error) {
	db, err := bbolt.Open(fname, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("runlog: could not open %q: %w", fname, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("runlog: could not create runs bucket: %w", err)
	}
	return &Log{db: db}, nil
}

func (rl *Log) Close() error {
	return rl.db.Close()
}

func key(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

// Next reserves the next run number.
func (rl *Log) Next() (uint64, error) {
	var id uint64
	err := rl.db.Update(func(tx *bbolt.Tx) error {
		var err error
		id, err = tx.Bucket(bucketRuns).NextSequence()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("runlog: could not reserve run number: %w", err)
	}
	return id, nil
}

// Begin records the start of a run.
func (rl *Log) Begin(run Run) error {
	return rl.put(run)
}

// End records the end of run id.
func (rl *Log) End(id uint64, stats device.Stats, rerr error) error {
	run, err := rl.Run(id)
	if err != nil {
		return err
	}
	run.End = time.Now().UTC()
	run.Stats = stats
	if rerr != nil {
		run.Err = rerr.Error()
	}
	return rl.put(run)
}

func (rl *Log) put(run Run) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("runlog: could not encode run %d: %w", run.ID, err)
	}
	err = rl.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(key(run.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("runlog: could not store run %d: %w", run.ID, err)
	}
	return nil
}

// Run returns the run id.
func (rl *Log) Run(id uint64) (Run, error) {
	var run Run
	err := rl.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketRuns).Get(key(id))
		if raw == nil {
			return fmt.Errorf("runlog: could not find run %d: %w", id, ErrNoSuchRun)
		}
		return json.Unmarshal(raw, &run)
	})
	return run, err
}

// Runs returns all the runs, in increasing run number.
func (rl *Log) Runs() ([]Run, error) {
	var runs []Run
	err := rl.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, raw []byte) error {
			var run Run
			err := json.Unmarshal(raw, &run)
			if err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("runlog: could not list runs: %w", err)
	}
	return runs, nil
}
