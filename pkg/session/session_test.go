package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicy_Evaluate(t *testing.T) {
	p := NewPolicy(30*time.Minute, 5*time.Minute)

	cases := []struct {
		elapsed time.Duration
		want    State
	}{
		{0, StateActive},
		{24 * time.Minute, StateActive},
		{25 * time.Minute, StateWarning},
		{29*time.Minute + 59*time.Second, StateWarning},
		{30 * time.Minute, StateExpired},
		{time.Hour, StateExpired},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, p.Evaluate(tc.elapsed), tc.elapsed.String())
	}
}

func TestPolicy_DisabledAndClamped(t *testing.T) {
	require.Equal(t, StateActive, Policy{}.Evaluate(100*time.Hour))

	p := NewPolicy(time.Minute, time.Hour)
	require.Equal(t, time.Minute, p.WarningWindow)
	require.Equal(t, StateWarning, p.Evaluate(0))
}

func TestPolicy_Remaining(t *testing.T) {
	p := NewPolicy(10*time.Minute, time.Minute)
	require.Equal(t, 4*time.Minute, p.Remaining(6*time.Minute))
	require.Equal(t, time.Duration(0), p.Remaining(11*time.Minute))
}
