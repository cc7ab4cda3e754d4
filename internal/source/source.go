// Package source reads raw rows from upstream producers. Each adapter turns one
// file format into header-keyed rows; normalization happens downstream.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Kind identifies the canonical entity a row describes.
type Kind string

const (
	KindUser       Kind = "user"
	KindExercise   Kind = "exercise"
	KindBodyMetric Kind = "body_metric"
)

// Kinds lists kinds in the order a run must consume them; users first so that
// records can resolve their owners.
func Kinds() []Kind {
	return []Kind{KindUser, KindExercise, KindBodyMetric}
}

// Row is one raw record. Field names are lower-cased header names. Garbled
// marks a line the reader could not split; it carries no fields.
type Row struct {
	Source  string
	Kind    Kind
	Line    int
	Fields  map[string]string
	Garbled bool
}

// Get returns the first non-empty value among the given column names.
func (r Row) Get(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(r.Fields[name]); v != "" {
			return v
		}
	}
	return ""
}

// Adapter yields rows of one kind from a single source.
type Adapter interface {
	Name() string
	Read(ctx context.Context, kind Kind, fn func(Row) error) error
}

// readCSV streams a header-named CSV file. A missing file yields no rows and a
// line that cannot be parsed is passed on with nil fields.
func readCSV(ctx context.Context, path string, fn func(line int, fields map[string]string) error) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read header %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			return nil
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			if err := fn(line, nil); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if name == "" || i >= len(record) {
				continue
			}
			fields[name] = record[i]
		}
		if err := fn(line, fields); err != nil {
			return err
		}
	}
}
