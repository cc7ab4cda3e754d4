// Package normalize turns raw source rows into validated intermediate records.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"example.com/consolidation/internal/domain"
	"example.com/consolidation/internal/source"
)

// UserRef identifies the owner of a row: by natural key, or by a source-local
// user id that the reconciler can map back to a key seen earlier in the run.
type UserRef struct {
	NaturalKey string
	LocalID    string
}

// Empty reports whether neither identifier is usable.
func (r UserRef) Empty() bool { return r.NaturalKey == "" && r.LocalID == "" }

// User is a normalized user row.
type User struct {
	Ref      UserRef
	Username string
	Role     domain.Role
	Age      *int     `validate:"omitempty,gte=15,lte=80"`
	Gender   domain.Gender
	Goal     domain.Goal
	HeightCM *float64 `validate:"omitempty,gte=140,lte=220"`
	WeightKG *float64 `validate:"omitempty,gte=30,lte=200"`
}

// Exercise is a normalized exercise session.
type Exercise struct {
	Ref             UserRef
	ExerciseType    string `validate:"required"`
	ExerciseDate    time.Time
	DurationMinutes int     `validate:"gte=5,lte=300"`
	CaloriesBurned  float64 `validate:"gt=0,lte=10000"`
	AvgHeartRate    *int    `validate:"omitempty,gte=60,lte=200"`
	MaxHeartRate    *int    `validate:"omitempty,gte=80,lte=220"`
	EquipmentUsed   string
}

// Record binds the session to its canonical owner.
func (e Exercise) Record(userID int64) domain.ExerciseRecord {
	return domain.ExerciseRecord{
		UserID:          userID,
		ExerciseType:    e.ExerciseType,
		ExerciseDate:    e.ExerciseDate,
		DurationMinutes: e.DurationMinutes,
		CaloriesBurned:  e.CaloriesBurned,
		AvgHeartRate:    e.AvgHeartRate,
		MaxHeartRate:    e.MaxHeartRate,
		EquipmentUsed:   e.EquipmentUsed,
	}
}

// BodyMetric is a normalized measurement. Any source BMI is discarded.
type BodyMetric struct {
	Ref               UserRef
	MeasurementDate   time.Time
	WeightKG          float64  `validate:"gte=30,lte=200"`
	BodyFatPercentage *float64 `validate:"omitempty,gte=5,lte=50"`
	HeightCM          *float64 `validate:"omitempty,gte=140,lte=220"`
	MuscleMassKG      *float64 `validate:"omitempty,gte=0,lte=120"`
}

// Metric binds the measurement to its canonical owner.
func (b BodyMetric) Metric(userID int64) domain.BodyMetric {
	return domain.BodyMetric{
		UserID:            userID,
		MeasurementDate:   b.MeasurementDate,
		WeightKG:          b.WeightKG,
		BodyFatPercentage: b.BodyFatPercentage,
		HeightCM:          b.HeightCM,
		MuscleMassKG:      b.MuscleMassKG,
	}
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used to reject future-dated rows.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// Normalizer is shared by every source adapter.
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
}

// New constructs a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedRow, fmt.Sprintf(format, args...))
}

func garbled(row source.Row) error {
	return malformed("line %d could not be parsed", row.Line)
}

func ref(row source.Row) UserRef {
	return UserRef{
		NaturalKey: NaturalKey(row.Get("username", "natural_key")),
		LocalID:    row.Get("user_id"),
	}
}

// User normalizes a user row. Users must carry a natural key of their own; a
// bare source-local id is never promoted to one.
func (n *Normalizer) User(row source.Row) (User, error) {
	if row.Garbled {
		return User{}, garbled(row)
	}
	u := User{
		Ref:      ref(row),
		Username: row.Get("username", "natural_key"),
		Role:     parseRole(row.Get("role")),
		Gender:   parseGender(row.Get("gender")),
		Goal:     parseGoal(row.Get("fitness_goal", "goal")),
	}
	if u.Ref.NaturalKey == "" {
		return User{}, fmt.Errorf("%w: line %d has no username", domain.ErrUnresolvableIdentity, row.Line)
	}

	var err error
	if u.Age, err = parseAge(row.Get("age")); err != nil {
		return User{}, err
	}
	if u.HeightCM, err = optionalFloat(row.Get("height_cm", "height"), "height_cm"); err != nil {
		return User{}, err
	}
	if u.WeightKG, err = optionalFloat(row.Get("weight_kg", "weight"), "weight_kg"); err != nil {
		return User{}, err
	}
	if err := n.check(u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Exercise normalizes one exercise session row.
func (n *Normalizer) Exercise(row source.Row) (Exercise, error) {
	if row.Garbled {
		return Exercise{}, garbled(row)
	}
	e := Exercise{
		Ref:           ref(row),
		ExerciseType:  CanonicalExerciseType(row.Get("exercise_type")),
		EquipmentUsed: row.Get("equipment_used", "equipment"),
	}
	if e.Ref.Empty() {
		return Exercise{}, fmt.Errorf("%w: line %d has no user reference", domain.ErrUnresolvableIdentity, row.Line)
	}

	var err error
	if e.ExerciseDate, err = n.date(row.Get("exercise_date", "date"), "exercise_date"); err != nil {
		return Exercise{}, err
	}
	duration, err := requiredFloat(row.Get("duration_minutes", "duration"), "duration_minutes")
	if err != nil {
		return Exercise{}, err
	}
	e.DurationMinutes = int(math.Round(duration))
	if e.CaloriesBurned, err = requiredFloat(row.Get("calories_burned", "calories"), "calories_burned"); err != nil {
		return Exercise{}, err
	}
	if e.AvgHeartRate, err = optionalInt(row.Get("avg_heart_rate", "average_heart_rate"), "avg_heart_rate"); err != nil {
		return Exercise{}, err
	}
	if e.MaxHeartRate, err = optionalInt(row.Get("max_heart_rate"), "max_heart_rate"); err != nil {
		return Exercise{}, err
	}
	if err := n.check(e); err != nil {
		return Exercise{}, err
	}
	if e.AvgHeartRate != nil && e.MaxHeartRate != nil && *e.AvgHeartRate > *e.MaxHeartRate {
		return Exercise{}, malformed("avg_heart_rate %d exceeds max_heart_rate %d", *e.AvgHeartRate, *e.MaxHeartRate)
	}
	return e, nil
}

// BodyMetric normalizes one body composition row.
func (n *Normalizer) BodyMetric(row source.Row) (BodyMetric, error) {
	if row.Garbled {
		return BodyMetric{}, garbled(row)
	}
	b := BodyMetric{Ref: ref(row)}
	if b.Ref.Empty() {
		return BodyMetric{}, fmt.Errorf("%w: line %d has no user reference", domain.ErrUnresolvableIdentity, row.Line)
	}

	var err error
	if b.MeasurementDate, err = n.date(row.Get("measurement_date", "date"), "measurement_date"); err != nil {
		return BodyMetric{}, err
	}
	if b.WeightKG, err = requiredFloat(row.Get("weight_kg", "weight"), "weight_kg"); err != nil {
		return BodyMetric{}, err
	}
	if b.BodyFatPercentage, err = optionalFloat(row.Get("body_fat_percentage", "body_fat"), "body_fat_percentage"); err != nil {
		return BodyMetric{}, err
	}
	if b.HeightCM, err = optionalFloat(row.Get("height_cm", "height"), "height_cm"); err != nil {
		return BodyMetric{}, err
	}
	if b.MuscleMassKG, err = optionalFloat(row.Get("muscle_mass_kg", "muscle_mass"), "muscle_mass_kg"); err != nil {
		return BodyMetric{}, err
	}
	if err := n.check(b); err != nil {
		return BodyMetric{}, err
	}
	return b, nil
}

func (n *Normalizer) check(v any) error {
	if err := n.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return malformed("%s fails %s=%s", first.Field(), first.Tag(), first.Param())
		}
		return malformed("%v", err)
	}
	return nil
}

var dateLayouts = []string{
	domain.DateLayout,
	"2006/01/02",
	"1/2/2006",
	"1/2/2006 3:04:05 PM",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func (n *Normalizer) date(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, malformed("missing %s", field)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			day := domain.Day(t)
			if day.After(domain.Day(n.now())) {
				return time.Time{}, malformed("%s %s is in the future", field, raw)
			}
			return day, nil
		}
	}
	return time.Time{}, malformed("unparseable %s %q", field, raw)
}

func parseNumber(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a number")
	}
	return v, nil
}

func requiredFloat(raw, field string) (float64, error) {
	if raw == "" {
		return 0, malformed("missing %s", field)
	}
	v, err := parseNumber(raw)
	if err != nil {
		return 0, malformed("unparseable %s %q", field, raw)
	}
	return v, nil
}

func optionalFloat(raw, field string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := parseNumber(raw)
	if err != nil {
		return nil, malformed("unparseable %s %q", field, raw)
	}
	return &v, nil
}

func optionalInt(raw, field string) (*int, error) {
	f, err := optionalFloat(raw, field)
	if err != nil || f == nil {
		return nil, err
	}
	v := int(math.Round(*f))
	return &v, nil
}

func parseAge(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	if age, ok := ageBuckets[fold(raw)]; ok {
		return &age, nil
	}
	return optionalInt(raw, "age")
}
