package source

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	fitbitDailyActivity = "dailyActivity_merged.csv"
	fitbitWeightLog     = "weightLogInfo_merged.csv"

	// FitbitKeyPrefix namespaces device IDs so they cannot collide with usernames.
	FitbitKeyPrefix = "fitbit_"
)

// Fitbit reads the public Fitbit export. It has no user file, so a user row is
// emitted for every distinct device ID seen in the activity or weight logs.
type Fitbit struct {
	name string
	dir  string
}

// NewFitbit returns an adapter over an unpacked export directory.
func NewFitbit(name, dir string) *Fitbit {
	if name == "" {
		name = "fitbit:" + filepath.Base(dir)
	}
	return &Fitbit{name: name, dir: dir}
}

func (f *Fitbit) Name() string { return f.name }

func (f *Fitbit) Read(ctx context.Context, kind Kind, fn func(Row) error) error {
	switch kind {
	case KindUser:
		return f.readUsers(ctx, fn)
	case KindExercise:
		return readCSV(ctx, filepath.Join(f.dir, fitbitDailyActivity), func(line int, fields map[string]string) error {
			return fn(Row{Source: f.name, Kind: kind, Line: line, Fields: mapDailyActivity(fields), Garbled: fields == nil})
		})
	case KindBodyMetric:
		return readCSV(ctx, filepath.Join(f.dir, fitbitWeightLog), func(line int, fields map[string]string) error {
			return fn(Row{Source: f.name, Kind: kind, Line: line, Fields: mapWeightLog(fields), Garbled: fields == nil})
		})
	}
	return fmt.Errorf("fitbit source: unsupported kind %q", kind)
}

func (f *Fitbit) readUsers(ctx context.Context, fn func(Row) error) error {
	seen := make(map[string]struct{})
	line := 0
	collect := func(_ int, fields map[string]string) error {
		id := strings.TrimSpace(fields["id"])
		if id == "" {
			return nil
		}
		if _, ok := seen[id]; ok {
			return nil
		}
		seen[id] = struct{}{}
		line++
		return fn(Row{Source: f.name, Kind: KindUser, Line: line, Fields: map[string]string{
			"username": FitbitKeyPrefix + id,
			"role":     "STUDENT",
		}})
	}
	if err := readCSV(ctx, filepath.Join(f.dir, fitbitDailyActivity), collect); err != nil {
		return err
	}
	return readCSV(ctx, filepath.Join(f.dir, fitbitWeightLog), collect)
}

func fitbitKey(fields map[string]string) string {
	id := strings.TrimSpace(fields["id"])
	if id == "" {
		return ""
	}
	return FitbitKeyPrefix + id
}

// mapDailyActivity keeps the dominant intensity band as a single session. Days
// with too little activity carry no exercise type and are rejected downstream.
func mapDailyActivity(fields map[string]string) map[string]string {
	out := map[string]string{
		"username":        fitbitKey(fields),
		"exercise_date":   fields["activitydate"],
		"calories_burned": fields["calories"],
	}

	very := atoiOrZero(fields["veryactiveminutes"])
	fairly := atoiOrZero(fields["fairlyactiveminutes"])
	lightly := atoiOrZero(fields["lightlyactiveminutes"])

	switch {
	case very > 30:
		out["exercise_type"] = "Running"
		out["duration_minutes"] = strconv.Itoa(very)
	case fairly > 20:
		out["exercise_type"] = "Brisk Walking"
		out["duration_minutes"] = strconv.Itoa(fairly)
	case lightly > 30:
		out["exercise_type"] = "Walking"
		out["duration_minutes"] = strconv.Itoa(lightly)
	}
	return out
}

// mapWeightLog derives height from the reported BMI and estimates muscle mass
// from lean mass when body fat is present.
func mapWeightLog(fields map[string]string) map[string]string {
	out := map[string]string{
		"username":         fitbitKey(fields),
		"measurement_date": fields["date"],
		"weight_kg":        fields["weightkg"],
	}

	weight, weightErr := strconv.ParseFloat(strings.TrimSpace(fields["weightkg"]), 64)
	if bmi, err := strconv.ParseFloat(strings.TrimSpace(fields["bmi"]), 64); err == nil && weightErr == nil && bmi > 0 {
		out["height_cm"] = strconv.FormatFloat(math.Sqrt(weight/bmi)*100, 'f', 1, 64)
	}
	if fat, err := strconv.ParseFloat(strings.TrimSpace(fields["fat"]), 64); err == nil && weightErr == nil {
		out["body_fat_percentage"] = strconv.FormatFloat(fat, 'f', 1, 64)
		out["muscle_mass_kg"] = strconv.FormatFloat(weight*(1-fat/100)*0.45, 'f', 2, 64)
	}
	return out
}

func atoiOrZero(s string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int(v)
}
