package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"reelrelay/internal/core/domain"
)

type scriptedRunner struct {
	calls []string
	errs  map[string]error
}

func (s *scriptedRunner) Run(_ context.Context, niche domain.NicheConfig) (RunReport, error) {
	s.calls = append(s.calls, niche.Name)
	if err := s.errs[niche.Name]; err != nil {
		return RunReport{Niche: niche.Name}, err
	}
	return RunReport{Niche: niche.Name, Candidates: 1, PipelineStats: PipelineStats{Committed: 1}}, nil
}

func niches(names ...string) []domain.NicheConfig {
	out := make([]domain.NicheConfig, len(names))
	for i, n := range names {
		out[i] = domain.NicheConfig{Name: n}
	}
	return out
}

func TestScheduler_RunsInOrderWithDelayBetween(t *testing.T) {
	runner := &scriptedRunner{}
	s := NewScheduler(runner, DefaultNicheDelay, discardLogger())
	var slept []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	reports, err := s.RunAll(context.Background(), niches("a", "b", "c"), true)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if fmt.Sprint(runner.calls) != "[a b c]" {
		t.Errorf("order = %v", runner.calls)
	}
	if len(reports) != 3 {
		t.Errorf("reports = %d, want 3", len(reports))
	}
	if len(slept) != 2 || slept[0] != DefaultNicheDelay {
		t.Errorf("sleeps = %v, want two of %v", slept, DefaultNicheDelay)
	}
}

func TestScheduler_NoDelay(t *testing.T) {
	s := NewScheduler(&scriptedRunner{}, time.Minute, discardLogger())
	s.sleep = func(context.Context, time.Duration) error {
		t.Fatal("slept without delay enabled")
		return nil
	}
	if _, err := s.RunAll(context.Background(), niches("a", "b"), false); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
}

func TestScheduler_ZeroDelayNeverSleeps(t *testing.T) {
	runner := &scriptedRunner{}
	s := NewScheduler(runner, 0, discardLogger())
	s.sleep = func(context.Context, time.Duration) error {
		t.Fatal("slept with a zero niche delay")
		return nil
	}
	if _, err := s.RunAll(context.Background(), niches("a", "b", "c"), true); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestScheduler_NicheFailureDoesNotStopOthers(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"a": errors.New("boom")}}
	s := NewScheduler(runner, time.Minute, discardLogger())
	s.sleep = noSleep

	reports, err := s.RunAll(context.Background(), niches("a", "b"), true)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(runner.calls) != 2 || reports[1].Committed != 1 {
		t.Errorf("calls = %v reports = %+v", runner.calls, reports)
	}
}

func TestScheduler_LedgerInitAborts(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"a": fmt.Errorf("%w: a: disk", ErrLedgerInit)}}
	s := NewScheduler(runner, time.Minute, discardLogger())
	s.sleep = noSleep

	_, err := s.RunAll(context.Background(), niches("a", "b"), false)
	if !errors.Is(err, ErrLedgerInit) {
		t.Fatalf("err = %v, want ErrLedgerInit", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("calls = %v, want only a", runner.calls)
	}
}

func TestScheduler_CancelDuringDelay(t *testing.T) {
	runner := &scriptedRunner{}
	s := NewScheduler(runner, time.Hour, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	_, err := s.RunAll(ctx, niches("a", "b"), true)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestScheduler_MissingInputNicheContinues(t *testing.T) {
	missing := newNiche(t, "missing", nil)
	present := newNiche(t, "present", []string{"user"})
	feed := newFakeFeed()
	feed.posts["user"] = []domain.Post{videoPost("AAA", "user")}

	s := NewScheduler(newTestRunner(feed, newFakeStore(), nil), time.Minute, discardLogger())
	s.sleep = noSleep

	reports, err := s.RunAll(context.Background(), []domain.NicheConfig{missing, present}, true)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if reports[0].Candidates != 0 || reports[1].Committed != 1 {
		t.Errorf("reports = %+v", reports)
	}
}
