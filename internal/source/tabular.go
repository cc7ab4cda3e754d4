package source

import (
	"context"
	"fmt"
	"path/filepath"
)

var tabularFiles = map[Kind]string{
	KindUser:       "users.csv",
	KindExercise:   "exercise_records.csv",
	KindBodyMetric: "body_metrics.csv",
}

// Tabular reads the intermediate hand-off format: one CSV per table whose
// headers use canonical column names.
type Tabular struct {
	name string
	dir  string
}

// NewTabular returns an adapter over dir; name labels rows and aliases.
func NewTabular(name, dir string) *Tabular {
	if name == "" {
		name = "tabular:" + filepath.Base(dir)
	}
	return &Tabular{name: name, dir: dir}
}

func (t *Tabular) Name() string { return t.name }

func (t *Tabular) Read(ctx context.Context, kind Kind, fn func(Row) error) error {
	file, ok := tabularFiles[kind]
	if !ok {
		return fmt.Errorf("tabular source: unsupported kind %q", kind)
	}
	return readCSV(ctx, filepath.Join(t.dir, file), func(line int, fields map[string]string) error {
		return fn(Row{Source: t.name, Kind: kind, Line: line, Fields: fields, Garbled: fields == nil})
	})
}
