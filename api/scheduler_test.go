package api

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearEndScheduler_RunOnce(t *testing.T) {
	// GIVEN: An opened 2026 year
	ts := newBasicServer(t)
	s := NewYearEndScheduler(ts.handler.YearEnd, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// WHEN: Running while the year is still in progress
	s.Clock = func() time.Time { return testNow }
	closed, err := s.RunOnce(t.Context())

	// THEN: Nothing is closed
	require.NoError(t, err)
	assert.Empty(t, closed)

	// WHEN: Running after the year ended, twice
	s.Clock = func() time.Time { return time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC) }
	closed, err = s.RunOnce(t.Context())
	require.NoError(t, err)
	again, err := s.RunOnce(t.Context())
	require.NoError(t, err)

	// THEN: All balances close once
	assert.Equal(t, map[int]int{2026: 5}, closed)
	assert.Empty(t, again)
}

func TestYearEndScheduler_StartStop(t *testing.T) {
	ts := newBasicServer(t)
	s := NewYearEndScheduler(ts.handler.YearEnd, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Interval = 10 * time.Millisecond
	s.Clock = func() time.Time { return time.Date(2027, time.January, 2, 0, 0, 0, 0, time.UTC) }

	s.Start()
	s.Start()

	// The immediate run closes the year.
	require.Eventually(t, func() bool {
		rec := ts.do("GET", "/api/balances?status=CLOSED", nil, nil)
		return len(decodeAs[[]BalanceDTO](t, rec)) == 5
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}
