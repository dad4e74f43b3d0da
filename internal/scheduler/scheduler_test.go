package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := New("not a schedule", nil, func(context.Context) error { return nil }, nil)
	require.ErrorContains(t, err, `parse schedule "not a schedule"`)
}

func TestRunNowRecordsStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	calls := 0
	fail := true
	s, err := New("", time.UTC, func(ctx context.Context) error {
		calls++
		require.NotNil(t, ctx)
		if fail {
			return errors.New("catalog exhausted")
		}
		return nil
	}, testLogger(&buf))
	require.NoError(t, err)

	st := s.Status()
	require.Equal(t, DefaultSchedule, st.Schedule)
	require.True(t, st.LastStart.IsZero())

	s.RunNow()
	st = s.Status()
	require.Equal(t, 1, calls)
	require.Equal(t, "catalog exhausted", st.LastError)
	require.False(t, st.Running)
	require.False(t, st.LastEnd.Before(st.LastStart))
	require.Contains(t, buf.String(), "scheduled run failed")

	fail = false
	s.RunNow()
	require.Empty(t, s.Status().LastError)
	require.Equal(t, 2, calls)
}

func TestStartSchedulesNextRun(t *testing.T) {
	t.Parallel()

	s, err := New("0 12 * * *", time.UTC, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	next := s.Status().NextRun
	require.False(t, next.IsZero())
	require.Equal(t, 12, next.UTC().Hour())
	require.Zero(t, next.Minute())
	require.True(t, next.After(time.Now()))
}

func TestCronLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := cronLogger{logger: testLogger(&buf)}
	l.Info("wake", "now", "x")
	l.Error(errors.New("boom"), "panic", "job", 1)

	out := buf.String()
	require.Contains(t, out, `msg="cron: wake"`)
	require.Contains(t, out, `msg="cron: panic"`)
	require.Contains(t, out, "error=boom")
}
