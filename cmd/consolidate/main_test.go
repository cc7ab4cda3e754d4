package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunRejectsBadFlags(t *testing.T) {
	cases := map[string][]string{
		"unknown reset":       {"-reset", "everything", "-source", "tabular=/tmp"},
		"unknown source kind": {"-source", "strava=/tmp"},
		"malformed source":    {"-source", "/tmp"},
		"no source":           {},
		"half period":         {"-source", "tabular=/tmp", "-period-start", "2024-06-01"},
		"inverted period":     {"-source", "tabular=/tmp", "-period-start", "2024-06-30", "-period-end", "2024-06-01"},
		"bad date":            {"-source", "tabular=/tmp", "-period-start", "June"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			require.Equal(t, exitUsage, run(args, &stdout, &stderr))
			require.Empty(t, stdout.String())
			require.NotEmpty(t, stderr.String())
		})
	}
}

func TestSourceFlagsKeepOrder(t *testing.T) {
	var s sourceFlags
	require.NoError(t, s.Set("tabular=./cleaned"))
	require.NoError(t, s.Set("fitbit=./fitbit"))
	require.Len(t, s, 2)
	require.Equal(t, "tabular:0,fitbit:1", s.String())
}
