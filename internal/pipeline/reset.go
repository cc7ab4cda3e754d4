package pipeline

import (
	"fmt"
	"strings"
)

// ResetMode selects which tables are cleared before a run.
type ResetMode string

const (
	// ResetNone keeps every table.
	ResetNone ResetMode = "none"
	// ResetDerived clears leaderboards and unlocks.
	ResetDerived ResetMode = "derived"
	// ResetFull clears canonical and derived tables; achievement definitions stay.
	ResetFull ResetMode = "full"
)

// ParseResetMode validates a reset flag value; empty means none.
func ParseResetMode(raw string) (ResetMode, error) {
	switch mode := ResetMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case "":
		return ResetNone, nil
	case ResetNone, ResetDerived, ResetFull:
		return mode, nil
	}
	return "", fmt.Errorf("unknown reset mode %q (want none, derived or full)", raw)
}
