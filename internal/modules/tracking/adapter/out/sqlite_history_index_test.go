package out_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	trackingadapter "jogtrack/internal/modules/tracking/adapter/out"
	"jogtrack/internal/modules/tracking/domain"
)

func TestSQLiteHistoryIndexListsNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index", "jogtrack.db")
	index, err := trackingadapter.NewSQLiteHistoryIndex(path, nil)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer index.Close()

	summaries := []domain.Summary{
		{SessionID: "a", StartedAt: t0, StoppedAt: t0.Add(30 * time.Minute), TotalSteps: 4000, TotalDistanceMeters: 5000, DurationSeconds: 1800, ActiveSeconds: 1700, AverageSpeedMPS: 2.94},
		{SessionID: "b", StartedAt: t0.Add(24 * time.Hour), StoppedAt: t0.Add(24*time.Hour + 5*time.Second), TotalSteps: 10, DurationSeconds: 5, ActiveSeconds: 5},
		{SessionID: "c", StartedAt: t0.Add(time.Hour), StoppedAt: t0.Add(time.Hour + 123456789*time.Nanosecond), TotalSteps: 1},
	}
	for _, summary := range summaries {
		if err := index.Upsert(ctx, summary); err != nil {
			t.Fatalf("upsert %s: %v", summary.SessionID, err)
		}
	}

	got, err := index.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.Summary{summaries[1], summaries[2], summaries[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}

	limited, err := index.List(ctx, 1)
	if err != nil || len(limited) != 1 || limited[0].SessionID != "b" {
		t.Fatalf("limit 1: %+v err=%v", limited, err)
	}
}

func TestSQLiteHistoryIndexUpsertReplacesAndReopens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jogtrack.db")
	index, err := trackingadapter.NewSQLiteHistoryIndex(path, nil)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	summary := domain.Summary{SessionID: "a", StartedAt: t0, StoppedAt: t0.Add(time.Minute), TotalSteps: 10}
	if err := index.Upsert(ctx, summary); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	summary.TotalSteps = 12
	if err := index.Upsert(ctx, summary); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := index.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// migrations already applied; reopening must be a no-op
	reopened, err := trackingadapter.NewSQLiteHistoryIndex(path, nil)
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.List(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].TotalSteps != 12 {
		t.Fatalf("expected one replaced row, got %+v", got)
	}

	if err := reopened.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err = reopened.List(ctx, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("reset must empty the index: %+v err=%v", got, err)
	}
}
