package maintenance

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

type fakePruner struct {
	calls int
}

func (f *fakePruner) PruneOrphanTags(context.Context) (int64, error) {
	f.calls++
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestStart_EmptyScheduleIsNoop(t *testing.T) {
	p := NewPruner(&fakePruner{}, "", testLogger())
	stop, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
}

func TestStart_InvalidScheduleFails(t *testing.T) {
	p := NewPruner(&fakePruner{}, "not a cron expr", testLogger())
	if _, err := p.Start(context.Background()); err == nil {
		t.Error("Start accepted an invalid schedule")
	}
}

func TestStart_ValidSchedule(t *testing.T) {
	p := NewPruner(&fakePruner{}, "0 3 * * *", testLogger())
	stop, err := p.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stop()
}

func TestSweep_CallsStore(t *testing.T) {
	f := &fakePruner{}
	p := NewPruner(f, "0 3 * * *", testLogger())
	p.sweep(context.Background())
	if f.calls != 1 {
		t.Errorf("calls = %d, want 1", f.calls)
	}
}
