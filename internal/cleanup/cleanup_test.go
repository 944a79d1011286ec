package cleanup

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeReaper struct{ maxIdle time.Duration }

func (f *fakeReaper) ReapIdle(maxIdle time.Duration) int {
	f.maxIdle = maxIdle
	return 2
}

type fakePruner struct {
	cutoff time.Time
	limit  int
	err    error
}

func (f *fakePruner) PruneBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoff, f.limit = cutoff, limit
	return 7, f.err
}

func TestRunOnce(t *testing.T) {
	reaper := &fakeReaper{}
	pruner := &fakePruner{}
	j := &Janitor{
		Sessions:    reaper,
		SessionIdle: 15 * time.Minute,
		History:     pruner,
		Retention:   30 * 24 * time.Hour,
	}

	sessions, events := j.RunOnce(context.Background())
	if sessions != 2 || events != 7 {
		t.Errorf("RunOnce = %d, %d", sessions, events)
	}
	if reaper.maxIdle != 15*time.Minute {
		t.Errorf("maxIdle = %v", reaper.maxIdle)
	}
	if pruner.limit != maxDeletionPerRun {
		t.Errorf("limit = %d", pruner.limit)
	}
	if d := time.Since(pruner.cutoff); d < 30*24*time.Hour || d > 30*24*time.Hour+time.Minute {
		t.Errorf("cutoff age = %v", d)
	}
}

func TestRunOnceWithoutHistory(t *testing.T) {
	j := &Janitor{Sessions: &fakeReaper{}, SessionIdle: time.Minute}
	if _, events := j.RunOnce(context.Background()); events != 0 {
		t.Errorf("events = %d", events)
	}

	j = &Janitor{History: &fakePruner{err: errors.New("locked")}, Retention: time.Hour}
	if sessions, events := j.RunOnce(context.Background()); sessions != 0 || events != 0 {
		t.Errorf("failed prune = %d, %d", sessions, events)
	}
}
