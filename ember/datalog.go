// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ember

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// dataLog is an append-only CSV stream. Every record starts with the chip
// name, the unix time and the start address.
type dataLog struct {
	w *csv.Writer
	c io.Closer
}

func newDataLog(w io.Writer) *dataLog {
	if w == nil {
		w = io.Discard
	}
	return &dataLog{w: csv.NewWriter(w)}
}

// openDataLog opens path in append mode after inserting ".<unix time>" before
// its ".log" extension. An empty path discards records.
func openDataLog(path string, now time.Time) (*dataLog, error) {
	if path == "" {
		return newDataLog(nil), nil
	}
	f, err := os.OpenFile(sessionName(path, now), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ember: %w", err)
	}
	l := newDataLog(f)
	l.c = f
	return l, nil
}

func sessionName(path string, now time.Time) string {
	suffix := "." + strconv.FormatInt(now.Unix(), 10) + ".log"
	if strings.HasSuffix(path, ".log") {
		return strings.TrimSuffix(path, ".log") + suffix
	}
	return path + suffix
}

func (l *dataLog) record(chip string, addr int, op string, fields ...interface{}) error {
	rec := make([]string, 0, 4+len(fields))
	now := float64(time.Now().UnixNano()) / 1e9
	rec = append(rec, chip, strconv.FormatFloat(now, 'f', 6, 64), strconv.Itoa(addr), op)
	for _, f := range fields {
		rec = append(rec, fmt.Sprint(f))
	}
	if err := l.w.Write(rec); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *dataLog) Close() error {
	l.w.Flush()
	err := l.w.Error()
	if l.c != nil {
		if err2 := l.c.Close(); err == nil {
			err = err2
		}
		l.c = nil
	}
	return err
}
