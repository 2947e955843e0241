package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/footballdata"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeSource is a scriptable Source for the poll loop.
type fakeSource struct {
	mu     sync.Mutex
	tier   footballdata.Tier
	events []footballdata.MatchEvent
	err    error
	polls  int
}

func (f *fakeSource) Capabilities() footballdata.Tier { return f.tier }

func (f *fakeSource) FetchMatch(ctx context.Context, matchID string) (*footballdata.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.err != nil {
		return nil, f.err
	}
	return &footballdata.Match{ID: matchID, Status: footballdata.StatusInPlay}, nil
}

func (f *fakeSource) FetchMatchEvents(ctx context.Context, matchID string) ([]footballdata.MatchEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]footballdata.MatchEvent(nil), f.events...), nil
}

func (f *fakeSource) addEvent(ev footballdata.MatchEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBasicTierRejected(t *testing.T) {
	m := NewManager(testLogger())
	src := &fakeSource{tier: footballdata.TierBasic}

	err := m.Start(context.Background(), uuid.New(), "m1", src, time.Millisecond, nil, nil)
	if !errors.Is(err, footballdata.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
	if m.Count() != 0 {
		t.Error("rejected start left a task behind")
	}
}

func TestDeliversOnlyNewEvents(t *testing.T) {
	m := NewManager(testLogger())
	defer m.StopAll()

	src := &fakeSource{tier: footballdata.TierEnhanced}
	src.addEvent(footballdata.MatchEvent{ID: "e1", Type: "goal", Minute: 10, PlayerID: "p1"})

	var mu sync.Mutex
	var delivered []footballdata.MatchEvent
	sessionID := uuid.New()

	err := m.Start(context.Background(), sessionID, "m1", src, 10*time.Millisecond, func(u *footballdata.MatchUpdate) {
		mu.Lock()
		delivered = append(delivered, u.NewEvents...)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	})

	// Several more polls happen; the event must not be re-delivered.
	waitFor(t, func() bool { return src.pollCount() >= 3 })

	src.addEvent(footballdata.MatchEvent{ID: "e2", Type: "red_card", Minute: 30, PlayerID: "p2"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if delivered[0].ID != "e1" || delivered[1].ID != "e2" {
		t.Errorf("delivered = %+v", delivered)
	}
}

func TestRestartReplacesTask(t *testing.T) {
	m := NewManager(testLogger())
	defer m.StopAll()

	src := &fakeSource{tier: footballdata.TierEnhanced}
	sessionID := uuid.New()

	if err := m.Start(context.Background(), sessionID, "m1", src, 10*time.Millisecond, nil, nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start(context.Background(), sessionID, "m2", src, 10*time.Millisecond, nil, nil); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if m.Count() != 1 {
		t.Fatalf("task count = %d, want 1", m.Count())
	}
	if match, ok := m.Active(sessionID); !ok || match != "m2" {
		t.Errorf("active = (%q, %v), want m2", match, ok)
	}
}

func TestConcurrentStartsLeaveOneTask(t *testing.T) {
	m := NewManager(testLogger())
	defer m.StopAll()

	src := &fakeSource{tier: footballdata.TierEnhanced}
	sessionID := uuid.New()

	if err := m.Start(context.Background(), sessionID, "m0", src, 10*time.Millisecond, nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(match string) {
			defer wg.Done()
			if err := m.Start(context.Background(), sessionID, match, src, 10*time.Millisecond, nil, nil); err != nil {
				t.Errorf("Start %s: %v", match, err)
			}
		}(fmt.Sprintf("m%d", i+1))
	}
	wg.Wait()

	if m.Count() != 1 {
		t.Fatalf("task count = %d, want 1", m.Count())
	}
	if !m.Stop(sessionID) {
		t.Fatal("Stop returned false for a running task")
	}

	// No orphaned poller may survive the stop.
	polls := src.pollCount()
	time.Sleep(50 * time.Millisecond)
	if src.pollCount() != polls {
		t.Error("polling continued after Stop")
	}
}

func TestStop(t *testing.T) {
	m := NewManager(testLogger())

	src := &fakeSource{tier: footballdata.TierEnhanced}
	sessionID := uuid.New()

	if err := m.Start(context.Background(), sessionID, "m1", src, 10*time.Millisecond, nil, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !m.Stop(sessionID) {
		t.Fatal("Stop returned false for a running task")
	}

	polls := src.pollCount()
	time.Sleep(50 * time.Millisecond)
	if src.pollCount() != polls {
		t.Error("polling continued after Stop")
	}
	if m.Stop(sessionID) {
		t.Error("second Stop reported a task")
	}
}

func TestErrorsDoNotStopPolling(t *testing.T) {
	m := NewManager(testLogger())
	defer m.StopAll()

	src := &fakeSource{tier: footballdata.TierEnhanced, err: footballdata.ErrNetwork}
	sessionID := uuid.New()

	var mu sync.Mutex
	var errs int
	err := m.Start(context.Background(), sessionID, "m1", src, 10*time.Millisecond, nil, func(error) {
		mu.Lock()
		errs++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return errs >= 2
	})

	// Source recovers; deliveries resume.
	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	waitFor(t, func() bool { return src.pollCount() > 0 })
}
