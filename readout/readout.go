// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package readout stores and renders EMBER read-outs.
//
// A read-out file holds one tab separated row per address:
//
//	addr	time	v0	v1	...	v47
//
// where time is in seconds since the epoch and vN is the level of lane N.
package readout

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// Row is the read-out of one address.
type Row struct {
	Addr   int
	Time   time.Time
	Values []uint8
}

// Writer appends rows to a read-out file.
type Writer struct {
	w *csv.Writer
}

// NewWriter returns a Writer emitting rows to w.
func NewWriter(w io.Writer) *Writer {
	c := csv.NewWriter(w)
	c.Comma = '\t'
	return &Writer{w: c}
}

// Write writes one row and flushes it.
func (w *Writer) Write(r *Row) error {
	rec := make([]string, 0, 2+len(r.Values))
	rec = append(rec, strconv.Itoa(r.Addr), formatTime(r.Time))
	for _, v := range r.Values {
		rec = append(rec, strconv.Itoa(int(v)))
	}
	if err := w.w.Write(rec); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

func formatTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func parseTime(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3), nil
}

// ReadRows parses a read-out file.
func ReadRows(r io.Reader) ([]Row, error) {
	c := csv.NewReader(r)
	c.Comma = '\t'
	c.FieldsPerRecord = -1
	var rows []Row
	for {
		rec, err := c.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := c.FieldPos(0)
		if len(rec) < 2 {
			return nil, fmt.Errorf("readout: line %d: want addr and time, got %d fields", line, len(rec))
		}
		row := Row{Values: make([]uint8, len(rec)-2)}
		if row.Addr, err = strconv.Atoi(rec[0]); err != nil {
			return nil, fmt.Errorf("readout: line %d: %w", line, err)
		}
		if row.Time, err = parseTime(rec[1]); err != nil {
			return nil, fmt.Errorf("readout: line %d: %w", line, err)
		}
		for i, s := range rec[2:] {
			v, err := strconv.ParseUint(s, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("readout: line %d: %w", line, err)
			}
			row.Values[i] = uint8(v)
		}
		rows = append(rows, row)
	}
}

// MaxValue returns the largest value found in rows.
func MaxValue(rows []Row) uint8 {
	var m uint8
	for i := range rows {
		for _, v := range rows[i].Values {
			m = max(m, v)
		}
	}
	return m
}
