package ingest

import (
	"io"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/footballdata"
	"github.com/haakonros/lappeleken/pkg/game"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestSetup builds a session with two participants each owning one
// player, a goal bet, and an ingestor over it.
func newTestSetup(t *testing.T) (*game.Session, *Ingestor) {
	t.Helper()

	s := game.NewSession()
	alice := s.AddParticipant("Alice")
	bob := s.AddParticipant("Bob")

	striker := s.AddPlayer(game.Player{ExternalID: "p1", Name: "Sávio Moreira"})
	keeper := s.AddPlayer(game.Player{ExternalID: "p2", Name: "Keeper"})

	if _, err := s.AddBet(game.EventGoal, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("AddBet: %v", err)
	}

	// Manual assignment keeps ownership deterministic.
	alice.SelectedPlayers = append(alice.SelectedPlayers, striker.ID)
	bob.SelectedPlayers = append(bob.SelectedPlayers, keeper.ID)

	return s, New(s, testLogger())
}

func TestApplyRecordsAndSettles(t *testing.T) {
	s, in := newTestSetup(t)

	res := in.Apply([]footballdata.MatchEvent{
		{ID: "e1", Type: "goal", Minute: 12, PlayerID: "p1", PlayerName: "Sávio Moreira"},
	})
	if res.Recorded != 1 || res.Duplicates != 0 {
		t.Fatalf("result = %+v", res)
	}

	events := s.Events()
	if len(events) != 1 || events[0].Type != game.EventGoal || events[0].Minute != 12 {
		t.Fatalf("events = %+v", events)
	}

	balances := s.Balances()
	var nonZero int
	for _, b := range balances {
		if !b.IsZero() {
			nonZero++
		}
	}
	if nonZero != 2 {
		t.Errorf("expected both balances to move, got %v", balances)
	}
}

func TestApplyDeduplicates(t *testing.T) {
	s, in := newTestSetup(t)

	batch := []footballdata.MatchEvent{
		{ID: "e1", Type: "goal", Minute: 12, PlayerID: "p1"},
	}
	first := in.Apply(batch)
	second := in.Apply(batch)

	if first.Recorded != 1 {
		t.Fatalf("first = %+v", first)
	}
	if second.Recorded != 0 || second.Duplicates != 1 {
		t.Fatalf("second = %+v", second)
	}
	if got := len(s.Events()); got != 1 {
		t.Errorf("event log has %d entries, want 1", got)
	}
}

func TestDedupWithoutProviderIDs(t *testing.T) {
	_, in := newTestSetup(t)

	// Same minute, type and player with empty ids: one event re-polled.
	ev := footballdata.MatchEvent{Type: "goal", Minute: 30, PlayerID: "p1"}
	res := in.Apply([]footballdata.MatchEvent{ev, ev})
	if res.Recorded != 1 || res.Duplicates != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestTypeSynonyms(t *testing.T) {
	tests := []struct {
		raw  string
		want game.EventType
		ok   bool
	}{
		{"goal", game.EventGoal, true},
		{"yellowcard", game.EventYellowCard, true},
		{"booking", game.EventYellowCard, true},
		{"dismissal", game.EventRedCard, true},
		{"missed_penalty", game.EventPenaltyMissed, true},
		{"own_goal", game.EventOwnGoal, true},
		{"var_review", "", false},
	}
	for _, tt := range tests {
		got, ok := MapEventType(tt.raw)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MapEventType(%q) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}

func TestUnknownTypeDiscarded(t *testing.T) {
	s, in := newTestSetup(t)

	var reasons []string
	in.OnDiscard(func(_ footballdata.MatchEvent, reason string) {
		reasons = append(reasons, reason)
	})

	res := in.Apply([]footballdata.MatchEvent{
		{ID: "e1", Type: "var_review", Minute: 40, PlayerID: "p1"},
	})
	if res.Discarded != 1 || res.Recorded != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(reasons) != 1 || reasons[0] != "unknown_type" {
		t.Errorf("reasons = %v", reasons)
	}
	if len(s.Events()) != 0 {
		t.Error("discarded event reached the log")
	}
}

func TestUnresolvedPlayerDiscarded(t *testing.T) {
	s, in := newTestSetup(t)

	res := in.Apply([]footballdata.MatchEvent{
		{ID: "e1", Type: "goal", Minute: 5, PlayerID: "p99", PlayerName: "Unknown Sub"},
	})
	if res.Unresolved != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(s.Events()) != 0 {
		t.Error("unresolved event reached the log")
	}
}

func TestResolveByNormalizedName(t *testing.T) {
	s, in := newTestSetup(t)

	// Provider sends no stable id and drops the accent.
	res := in.Apply([]footballdata.MatchEvent{
		{ID: "e1", Type: "goal", Minute: 9, PlayerName: "savio moreira"},
	})
	if res.Recorded != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(s.Events()) != 1 {
		t.Fatal("event not recorded")
	}
}

func TestSubstitutionRouted(t *testing.T) {
	s, in := newTestSetup(t)

	res := in.Apply([]footballdata.MatchEvent{
		{ID: "e1", Type: "substitution", Minute: 60,
			OffPlayerID: "p1", OffPlayerName: "Sávio Moreira",
			OnPlayerID: "p3", OnPlayerName: "Fresh Legs"},
	})
	if res.Substitutions != 1 {
		t.Fatalf("result = %+v", res)
	}

	subs := s.Substitutions()
	if len(subs) != 1 || subs[0].In.Name != "Fresh Legs" || subs[0].Minute != 60 {
		t.Fatalf("substitutions = %+v", subs)
	}

	// Later events for the incoming player resolve.
	res = in.Apply([]footballdata.MatchEvent{
		{ID: "e2", Type: "goal", Minute: 75, PlayerID: "p3"},
	})
	if res.Recorded != 1 {
		t.Fatalf("goal after substitution: %+v", res)
	}
}

func TestSubstitutionForUnownedPlayerDiscarded(t *testing.T) {
	_, in := newTestSetup(t)

	res := in.Apply([]footballdata.MatchEvent{
		{ID: "e1", Type: "substitution", Minute: 60,
			OffPlayerID: "p77", OffPlayerName: "Bench Warmer",
			OnPlayerID: "p78", OnPlayerName: "Other Sub"},
	})
	if res.Discarded != 1 || res.Substitutions != 0 {
		t.Fatalf("result = %+v", res)
	}
}
