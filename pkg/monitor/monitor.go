// Package monitor polls a match data source on behalf of game sessions and
// delivers match updates with the events not seen in earlier polls.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/footballdata"
)

// DefaultInterval is the poll cadence when the caller passes zero.
const DefaultInterval = 30 * time.Second

// UpdateFunc receives one poll delivery.
type UpdateFunc func(update *footballdata.MatchUpdate)

// ErrorFunc receives poll failures. Failures never stop the loop; the next
// tick retries.
type ErrorFunc func(err error)

type task struct {
	cancel  context.CancelFunc
	done    chan struct{}
	matchID string
}

// Manager owns at most one polling task per session. Starting a session
// that is already polling cancels the old task before the new one begins,
// so a session can switch matches without doubling its event stream.
type Manager struct {
	log *logrus.Entry

	// startMu serializes Start calls. Two concurrent starts for the same
	// session must not both adopt the same old task and both spawn pollers.
	startMu sync.Mutex

	mu    sync.Mutex
	tasks map[uuid.UUID]*task
}

// NewManager creates a polling manager.
func NewManager(log *logrus.Logger) *Manager {
	return &Manager{
		log:   log.WithField("component", "monitor"),
		tasks: make(map[uuid.UUID]*task),
	}
}

// Start begins polling matchID for a session. The source must expose the
// event feed; basic-tier sources are rejected up front rather than erroring
// on every tick.
func (m *Manager) Start(ctx context.Context, sessionID uuid.UUID, matchID string, src footballdata.Source, interval time.Duration, onUpdate UpdateFunc, onError ErrorFunc) error {
	if src.Capabilities() != footballdata.TierEnhanced {
		return fmt.Errorf("%w: live polling needs the event feed", footballdata.ErrUnsupported)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	if old, ok := m.tasks[sessionID]; ok {
		old.cancel()
		m.mu.Unlock()
		<-old.done
		m.mu.Lock()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{}), matchID: matchID}
	m.tasks[sessionID] = t
	m.mu.Unlock()

	log := m.log.WithFields(logrus.Fields{"session": sessionID, "match": matchID})
	log.WithField("interval", interval).Info("polling started")

	go m.poll(taskCtx, t, src, interval, onUpdate, onError, log)
	return nil
}

func (m *Manager) poll(ctx context.Context, t *task, src footballdata.Source, interval time.Duration, onUpdate UpdateFunc, onError ErrorFunc, log *logrus.Entry) {
	defer close(t.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]struct{})

	// First poll immediately so the caller is not blind for a full interval.
	m.pollOnce(ctx, t.matchID, src, seen, onUpdate, onError, log)

	for {
		select {
		case <-ctx.Done():
			log.Info("polling stopped")
			return
		case <-ticker.C:
			m.pollOnce(ctx, t.matchID, src, seen, onUpdate, onError, log)
		}
	}
}

// pollOnce fetches match state and events, and delivers only the events not
// seen by this task before. Downstream ingestion dedups again by content
// key, so a restarted task re-delivering old events is harmless.
func (m *Manager) pollOnce(ctx context.Context, matchID string, src footballdata.Source, seen map[string]struct{}, onUpdate UpdateFunc, onError ErrorFunc, log *logrus.Entry) {
	if ctx.Err() != nil {
		return
	}

	match, err := src.FetchMatch(ctx, matchID)
	if err != nil {
		log.WithError(err).Warn("match fetch failed")
		if onError != nil {
			onError(err)
		}
		return
	}

	events, err := src.FetchMatchEvents(ctx, matchID)
	if err != nil {
		log.WithError(err).Warn("event fetch failed")
		if onError != nil {
			onError(err)
		}
		return
	}

	var fresh []footballdata.MatchEvent
	for _, ev := range events {
		key := fmt.Sprintf("%s|%d|%s|%s", ev.ID, ev.Minute, ev.Type, ev.PlayerID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, ev)
	}

	if onUpdate != nil {
		onUpdate(&footballdata.MatchUpdate{Match: match, NewEvents: fresh})
	}
}

// Stop cancels the polling task for a session, if any, and waits for it to
// finish.
func (m *Manager) Stop(sessionID uuid.UUID) bool {
	m.mu.Lock()
	t, ok := m.tasks[sessionID]
	if ok {
		delete(m.tasks, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	return true
}

// StopAll cancels every polling task and waits for them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = make(map[uuid.UUID]*task)
	m.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Active returns the match id a session is polling, if any.
func (m *Manager) Active(sessionID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[sessionID]
	if !ok {
		return "", false
	}
	return t.matchID, true
}

// Count returns the number of running tasks.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
