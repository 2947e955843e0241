package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestSession() *Session {
	s := NewSession()
	s.shuffle = func(n int, swap func(i, j int)) {} // keep deals deterministic
	return s
}

func addPlayers(s *Session, names ...string) []Player {
	out := make([]Player, len(names))
	for i, n := range names {
		out[i] = s.AddPlayer(Player{Name: n})
	}
	return out
}

func TestRecordEvent_GoalScenario(t *testing.T) {
	s := newTestSession()
	a := s.AddParticipant("A")
	b := s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()

	if _, err := s.AddBet(EventGoal, decimal.NewFromInt(10)); err != nil {
		t.Fatal(err)
	}

	// Deterministic deal: A holds X, B holds Y.
	if _, err := s.RecordEvent(players[0].ID, EventGoal); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}

	balances := s.Balances()
	if !balances[a.ID].Equal(decimal.NewFromInt(10)) {
		t.Errorf("A balance = %s, want 10", balances[a.ID])
	}
	if !balances[b.ID].Equal(decimal.NewFromInt(-10)) {
		t.Errorf("B balance = %s, want -10", balances[b.ID])
	}

	x, _ := s.Player(players[0].ID)
	if x.Goals != 1 {
		t.Errorf("X goals = %d, want 1", x.Goals)
	}
}

func TestUndoIsExactInverse(t *testing.T) {
	s := newTestSession()
	s.AddParticipant("A")
	s.AddParticipant("B")
	s.AddParticipant("C")
	players := addPlayers(s, "X", "Y", "Z")
	s.AssignPlayersRandomly()

	s.AddBet(EventGoal, decimal.NewFromInt(7))
	s.AddBet(EventYellowCard, decimal.NewFromInt(-3))

	s.RecordEvent(players[0].ID, EventGoal)
	s.RecordEvent(players[1].ID, EventYellowCard)

	before := s.Balances()
	beforeStats, _ := s.Player(players[2].ID)

	s.RecordEvent(players[2].ID, EventGoal)
	if _, err := s.UndoLastEvent(); err != nil {
		t.Fatalf("UndoLastEvent: %v", err)
	}

	after := s.Balances()
	for id, want := range before {
		if !after[id].Equal(want) {
			t.Errorf("balance %s = %s after undo, want %s", id, after[id], want)
		}
	}
	afterStats, _ := s.Player(players[2].ID)
	if afterStats.Goals != beforeStats.Goals {
		t.Errorf("goals = %d after undo, want %d", afterStats.Goals, beforeStats.Goals)
	}
}

func TestUndo_EmptyLog(t *testing.T) {
	s := newTestSession()
	if s.CanUndo() {
		t.Error("CanUndo should be false on a fresh session")
	}
	if _, err := s.UndoLastEvent(); err == nil {
		t.Error("expected error undoing an empty log")
	}
}

func TestUndo_StatCountersClampAtZero(t *testing.T) {
	s := newTestSession()
	s.AddParticipant("A")
	s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()
	s.AddBet(EventGoal, decimal.NewFromInt(1))

	s.RecordEvent(players[0].ID, EventGoal)
	s.UndoLastEvent()
	s.UndoLastEvent() // nothing left; must not panic or corrupt

	p, _ := s.Player(players[0].ID)
	if p.Goals != 0 {
		t.Errorf("goals = %d, want 0", p.Goals)
	}
}

func TestZeroSumAcrossSequence(t *testing.T) {
	s := newTestSession()
	for _, name := range []string{"A", "B", "C", "D"} {
		s.AddParticipant(name)
	}
	players := addPlayers(s, "P1", "P2", "P3", "P4", "P5", "P6", "P7")
	s.AssignPlayersRandomly()

	s.AddBet(EventGoal, decimal.NewFromInt(10))
	s.AddBet(EventRedCard, decimal.NewFromInt(-5))
	s.AddBet(EventAssist, decimal.NewFromInt(3))

	sequence := []struct {
		player int
		t      EventType
	}{
		{0, EventGoal}, {3, EventRedCard}, {5, EventAssist},
		{0, EventGoal}, {6, EventGoal}, {2, EventRedCard},
	}

	tolerance := decimal.New(1, -9)
	for i, step := range sequence {
		s.RecordEvent(players[step.player].ID, step.t)
		total := decimal.Zero
		for _, b := range s.Balances() {
			total = total.Add(b)
		}
		if total.Abs().GreaterThan(tolerance) {
			t.Fatalf("after event %d balances sum to %s, want ~0", i, total)
		}
	}
}

func TestReplayDeterminism(t *testing.T) {
	s := newTestSession()
	for _, name := range []string{"A", "B", "C"} {
		s.AddParticipant(name)
	}
	players := addPlayers(s, "P1", "P2", "P3", "P4", "P5")
	s.AssignPlayersRandomly()
	s.AddBet(EventGoal, decimal.NewFromInt(10))
	s.AddBet(EventYellowCard, decimal.NewFromInt(-2))

	s.RecordEvent(players[0].ID, EventGoal)
	s.RecordEvent(players[2].ID, EventYellowCard)
	s.RecordEvent(players[4].ID, EventGoal)

	incremental := s.Balances()
	s.RecalculateBalances()
	replayed := s.Balances()

	for id, want := range incremental {
		if !replayed[id].Equal(want) {
			t.Errorf("replayed balance %s = %s, want %s", id, replayed[id], want)
		}
	}
}

func TestRecordCustomEvent(t *testing.T) {
	s := newTestSession()
	a := s.AddParticipant("A")
	b := s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()

	if _, err := s.AddCustomBet("Hat-trick", decimal.NewFromInt(20)); err != nil {
		t.Fatal(err)
	}

	if _, err := s.RecordCustomEvent(players[0].ID, "Hat-trick"); err != nil {
		t.Fatalf("RecordCustomEvent: %v", err)
	}

	balances := s.Balances()
	if !balances[a.ID].Equal(decimal.NewFromInt(20)) || !balances[b.ID].Equal(decimal.NewFromInt(-20)) {
		t.Errorf("balances = %s / %s, want 20 / -20", balances[a.ID], balances[b.ID])
	}

	if _, err := s.RecordCustomEvent(players[0].ID, "Does not exist"); err == nil {
		t.Error("expected error for unknown custom bet name")
	}
}

func TestCustomBetGuards(t *testing.T) {
	s := newTestSession()
	if _, err := s.AddBet(EventCustom, decimal.NewFromInt(1)); err == nil {
		t.Error("AddBet must reject the custom type")
	}
	if _, err := s.AddCustomBet("", decimal.NewFromInt(1)); err == nil {
		t.Error("empty custom name must be rejected")
	}
	if _, err := s.AddCustomBet("Panna", decimal.NewFromInt(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddCustomBet("Panna", decimal.NewFromInt(2)); err == nil {
		t.Error("duplicate custom name must be rejected")
	}
}

func TestAssignPlayersRandomly_Fairness(t *testing.T) {
	cases := []struct {
		participants int
		players      int
	}{
		{2, 4}, {3, 10}, {4, 7}, {5, 5}, {3, 2},
	}
	for _, tc := range cases {
		s := NewSession() // real shuffle; fairness must hold regardless
		for i := 0; i < tc.participants; i++ {
			s.AddParticipant("p")
		}
		for i := 0; i < tc.players; i++ {
			s.AddPlayer(Player{Name: "x"})
		}
		s.AssignPlayersRandomly()

		total := 0
		floor := tc.players / tc.participants
		for _, p := range s.Participants() {
			n := len(p.SelectedPlayers)
			if n != floor && n != floor+1 {
				t.Errorf("%d/%d: roster size %d, want %d or %d", tc.participants, tc.players, n, floor, floor+1)
			}
			total += n
		}
		if total != tc.players {
			t.Errorf("%d/%d: %d players dealt, want %d", tc.participants, tc.players, total, tc.players)
		}
	}
}

func TestAssignPlayersRandomly_NoOpWhenEmpty(t *testing.T) {
	s := newTestSession()
	s.AssignPlayersRandomly() // neither participants nor players

	s.AddParticipant("A")
	s.AssignPlayersRandomly() // no players
	if got := s.Participants()[0].SelectedPlayers; len(got) != 0 {
		t.Errorf("roster = %v, want empty", got)
	}
}

func TestSubstitutePlayer(t *testing.T) {
	s := newTestSession()
	a := s.AddParticipant("A")
	s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()

	bench := s.AddPlayer(Player{Name: "Bench"})
	// AddPlayer put the bench player in the pool but not in a roster.

	sub, ok := s.SubstitutePlayer(players[0].ID, bench.ID, 60)
	if !ok {
		t.Fatal("substitution should succeed")
	}
	if sub.Out.ID != players[0].ID || sub.In.ID != bench.ID {
		t.Errorf("substitution records wrong players")
	}

	holder, ok := s.HolderOf(bench.ID)
	if !ok || holder.ID != a.ID {
		t.Error("incoming player should be held by A")
	}
	if _, stillHeld := s.HolderOf(players[0].ID); stillHeld {
		t.Error("outgoing player should no longer be in any active roster")
	}

	off, _ := s.Player(players[0].ID)
	if off.Status != StatusSubbedOff || off.StatusMinute != 60 {
		t.Errorf("outgoing status = %s@%d, want %s@60", off.Status, off.StatusMinute, StatusSubbedOff)
	}
}

func TestSubstitutedPlayerStillSettles(t *testing.T) {
	s := newTestSession()
	a := s.AddParticipant("A")
	b := s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()
	s.AddBet(EventGoal, decimal.NewFromInt(10))

	bench := s.AddPlayer(Player{Name: "Bench"})
	s.SubstitutePlayer(players[0].ID, bench.ID, 55)

	// A goal credited to the player A used to own still pays A.
	s.RecordEvent(players[0].ID, EventGoal)
	balances := s.Balances()
	if !balances[a.ID].Equal(decimal.NewFromInt(10)) || !balances[b.ID].Equal(decimal.NewFromInt(-10)) {
		t.Errorf("balances = %s / %s, want 10 / -10", balances[a.ID], balances[b.ID])
	}
}

func TestSubstitutePlayer_NoOps(t *testing.T) {
	s := newTestSession()
	s.AddParticipant("A")
	players := addPlayers(s, "X")
	s.AssignPlayersRandomly()
	bench := s.AddPlayer(Player{Name: "Bench"})

	if _, ok := s.SubstitutePlayer(uuid.New(), bench.ID, 10); ok {
		t.Error("unknown outgoing player must no-op")
	}
	if _, ok := s.SubstitutePlayer(players[0].ID, uuid.New(), 10); ok {
		t.Error("unknown incoming player must no-op")
	}
	if _, ok := s.SubstitutePlayer(bench.ID, players[0].ID, 10); ok {
		t.Error("outgoing player not in any roster must no-op")
	}
}

func TestReset(t *testing.T) {
	s := newTestSession()
	s.AddParticipant("A")
	addPlayers(s, "X")
	s.AddBet(EventGoal, decimal.NewFromInt(1))

	resetSeen := false
	s.OnReset(func() { resetSeen = true })
	s.Reset()

	if len(s.Participants()) != 0 || len(s.Players()) != 0 || len(s.Bets()) != 0 || len(s.Events()) != 0 {
		t.Error("reset should clear all state")
	}
	if !resetSeen {
		t.Error("reset callback not invoked")
	}
}

func TestSnapshotRestore_RecomputesBalances(t *testing.T) {
	s := newTestSession()
	a := s.AddParticipant("A")
	s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()
	s.AddBet(EventGoal, decimal.NewFromInt(10))
	s.RecordEvent(players[0].ID, EventGoal)

	snap := s.Snapshot("halftime")
	// Tamper with the saved balance; restore must not trust it.
	for i := range snap.Participants {
		snap.Participants[i].Balance = decimal.NewFromInt(999)
	}

	restored := NewSession()
	restored.Restore(snap)

	if restored.ID() != s.ID() {
		t.Error("restored session keeps the saved id")
	}
	balances := restored.Balances()
	if !balances[a.ID].Equal(decimal.NewFromInt(10)) {
		t.Errorf("restored balance = %s, want 10 (recomputed from events)", balances[a.ID])
	}
	if len(restored.Events()) != 1 {
		t.Errorf("restored %d events, want 1", len(restored.Events()))
	}
}

func TestEventCallback(t *testing.T) {
	s := newTestSession()
	s.AddParticipant("A")
	s.AddParticipant("B")
	players := addPlayers(s, "X", "Y")
	s.AssignPlayersRandomly()
	s.AddBet(EventGoal, decimal.NewFromInt(10))

	var seen []GameEvent
	s.OnEvent(func(ev GameEvent, deltas Deltas) { seen = append(seen, ev) })

	s.RecordEvent(players[0].ID, EventGoal)
	if len(seen) != 1 || seen[0].Type != EventGoal {
		t.Errorf("event callback saw %v", seen)
	}
}
