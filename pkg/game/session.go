package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session owns all mutable state for one game: participants, bets, the
// player pool, the event log and the substitution timeline. All mutation
// goes through the session's mutex; collaborators deliver updates to it from
// whatever goroutine they run on.
type Session struct {
	id uuid.UUID

	mu            sync.RWMutex
	participants  []*Participant
	players       map[uuid.UUID]*Player
	pool          []uuid.UUID // players currently in the game
	bets          []Bet
	events        []GameEvent
	substitutions []Substitution

	// applied keeps the exact deltas applied per event so undo restores
	// balances to the byte, independent of division rounding.
	applied map[uuid.UUID]Deltas

	shuffle func(n int, swap func(i, j int)) // override in tests

	onEvent        func(ev GameEvent, deltas Deltas)
	onUndo         func(ev GameEvent)
	onSubstitution func(sub Substitution)
	onReset        func()
}

// NewSession creates an empty (idle) session.
func NewSession() *Session {
	return &Session{
		id:      uuid.New(),
		players: make(map[uuid.UUID]*Player),
		applied: make(map[uuid.UUID]Deltas),
		shuffle: rand.Shuffle,
	}
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// OnEvent sets a callback invoked after every recorded event.
func (s *Session) OnEvent(fn func(ev GameEvent, deltas Deltas)) { s.onEvent = fn }

// OnUndo sets a callback invoked after an event is undone.
func (s *Session) OnUndo(fn func(ev GameEvent)) { s.onUndo = fn }

// OnSubstitution sets a callback invoked after a roster swap.
func (s *Session) OnSubstitution(fn func(sub Substitution)) { s.onSubstitution = fn }

// OnReset sets a callback invoked when the session is cleared.
func (s *Session) OnReset(fn func()) { s.onReset = fn }

// --- Setup operations ---

// AddParticipant appends a new participant with zero balance and an empty
// roster.
func (s *Session) AddParticipant(name string) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Participant{
		ID:      uuid.New(),
		Name:    name,
		Balance: decimal.Zero,
	}
	s.participants = append(s.participants, p)
	return p
}

// AddPlayer registers a player and puts it in the selectable pool.
func (s *Session) AddPlayer(player Player) Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	if player.ID == uuid.Nil {
		player.ID = uuid.New()
	}
	if player.Status == "" {
		player.Status = StatusActive
	}
	cp := player
	s.players[cp.ID] = &cp
	s.pool = append(s.pool, cp.ID)
	return cp
}

// AddBet appends a bet on a standard event type. Custom bets go through
// AddCustomBet so they always carry a display name.
func (s *Session) AddBet(t EventType, amount decimal.Decimal) (Bet, error) {
	if t == EventCustom {
		return Bet{}, fmt.Errorf("custom bets require a name, use AddCustomBet")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := Bet{ID: uuid.New(), Type: t, Amount: amount}
	s.bets = append(s.bets, b)
	return b, nil
}

// AddCustomBet appends a named custom bet. Names must be non-empty and
// unique among custom bets so events can be attributed unambiguously.
func (s *Session) AddCustomBet(name string, amount decimal.Decimal) (Bet, error) {
	if name == "" {
		return Bet{}, fmt.Errorf("custom bet name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bets {
		if b.Type == EventCustom && b.CustomName == name {
			return Bet{}, fmt.Errorf("custom bet %q already exists", name)
		}
	}
	b := Bet{ID: uuid.New(), Type: EventCustom, Amount: amount, CustomName: name}
	s.bets = append(s.bets, b)
	return b, nil
}

// AssignPlayersRandomly shuffles the pool and deals it as evenly as
// possible: every participant gets floor(N/P) players and the first N mod P
// participants get one extra. No-op if there are no participants or no
// players.
func (s *Session) AssignPlayersRandomly() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.participants) == 0 || len(s.pool) == 0 {
		return
	}

	deck := make([]uuid.UUID, len(s.pool))
	copy(deck, s.pool)
	s.shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	base := len(deck) / len(s.participants)
	extra := len(deck) % len(s.participants)

	idx := 0
	for i, p := range s.participants {
		count := base
		if i < extra {
			count++
		}
		p.SelectedPlayers = append([]uuid.UUID(nil), deck[idx:idx+count]...)
		idx += count
	}
}

// --- Event recording ---

// RecordEvent appends an event for a player and settles the matching bet.
// The settlement is a no-op (but the event is still logged) when no bet
// matches or the roster is not split between holders and non-holders.
func (s *Session) RecordEvent(playerID uuid.UUID, t EventType) (GameEvent, error) {
	return s.record(playerID, t, uuid.Nil, "", 0)
}

// RecordEventAt is RecordEvent with a match minute attached, used by the
// live ingestion path.
func (s *Session) RecordEventAt(playerID uuid.UUID, t EventType, minute int) (GameEvent, error) {
	return s.record(playerID, t, uuid.Nil, "", minute)
}

// RecordCustomEvent appends a custom event, resolving which custom bet the
// name refers to.
func (s *Session) RecordCustomEvent(playerID uuid.UUID, name string) (GameEvent, error) {
	s.mu.RLock()
	var betID uuid.UUID
	for _, b := range s.bets {
		if b.Type == EventCustom && b.CustomName == name {
			betID = b.ID
			break
		}
	}
	s.mu.RUnlock()

	if betID == uuid.Nil {
		return GameEvent{}, fmt.Errorf("no custom bet named %q", name)
	}
	return s.record(playerID, EventCustom, betID, name, 0)
}

func (s *Session) record(playerID uuid.UUID, t EventType, betID uuid.UUID, customName string, minute int) (GameEvent, error) {
	s.mu.Lock()

	player, ok := s.players[playerID]
	if !ok {
		s.mu.Unlock()
		return GameEvent{}, fmt.Errorf("unknown player %s", playerID)
	}

	ev := GameEvent{
		ID:         uuid.New(),
		PlayerID:   playerID,
		Type:       t,
		BetID:      betID,
		CustomName: customName,
		Minute:     minute,
		RecordedAt: time.Now(),
	}

	bumpStats(player, t, +1)

	deltas := SettleEvent(ev, s.bets, s.participants)
	s.apply(deltas)
	s.applied[ev.ID] = deltas
	s.events = append(s.events, ev)

	fn := s.onEvent
	s.mu.Unlock()

	if fn != nil {
		fn(ev, deltas)
	}
	return ev, nil
}

// CanUndo reports whether there is an event to undo.
func (s *Session) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events) > 0
}

// UndoLastEvent pops the most recent event and applies the exact inverse of
// its balance deltas and stat increments. Stat counters never go below zero.
func (s *Session) UndoLastEvent() (GameEvent, error) {
	s.mu.Lock()

	if len(s.events) == 0 {
		s.mu.Unlock()
		return GameEvent{}, fmt.Errorf("nothing to undo")
	}

	ev := s.events[len(s.events)-1]
	s.events = s.events[:len(s.events)-1]

	if player, ok := s.players[ev.PlayerID]; ok {
		bumpStats(player, ev.Type, -1)
	}

	s.apply(s.applied[ev.ID].Inverted())
	delete(s.applied, ev.ID)

	fn := s.onUndo
	s.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
	return ev, nil
}

// RecalculateBalances zeroes every balance and replays the full event log
// through the settlement calculator. It is the canonical repair operation:
// balances must always equal a fold over the log.
func (s *Session) RecalculateBalances() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.participants {
		p.Balance = decimal.Zero
	}
	s.applied = make(map[uuid.UUID]Deltas, len(s.events))
	for _, ev := range s.events {
		deltas := SettleEvent(ev, s.bets, s.participants)
		s.apply(deltas)
		s.applied[ev.ID] = deltas
	}
}

// apply adds deltas to participant balances. Caller holds the lock.
func (s *Session) apply(deltas Deltas) {
	if len(deltas) == 0 {
		return
	}
	for _, p := range s.participants {
		if d, ok := deltas[p.ID]; ok {
			p.Balance = p.Balance.Add(d)
		}
	}
}

func bumpStats(p *Player, t EventType, dir int) {
	switch t {
	case EventGoal:
		p.Goals = clamp(p.Goals + dir)
	case EventAssist:
		p.Assists = clamp(p.Assists + dir)
	case EventYellowCard:
		p.YellowCards = clamp(p.YellowCards + dir)
	case EventRedCard:
		p.RedCards = clamp(p.RedCards + dir)
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// --- Substitutions ---

// SubstitutePlayer moves ownership of the outgoing player to history and
// hands the incoming player to the same participant. Returns false without
// changing state when the outgoing player is not in any active roster or the
// incoming player is unknown.
func (s *Session) SubstitutePlayer(offID, onID uuid.UUID, minute int) (Substitution, bool) {
	s.mu.Lock()

	off, okOff := s.players[offID]
	on, okOn := s.players[onID]
	if !okOff || !okOn {
		s.mu.Unlock()
		return Substitution{}, false
	}

	var owner *Participant
	ownerIdx := -1
	for _, p := range s.participants {
		for i, id := range p.SelectedPlayers {
			if id == offID {
				owner, ownerIdx = p, i
				break
			}
		}
		if owner != nil {
			break
		}
	}
	if owner == nil {
		s.mu.Unlock()
		return Substitution{}, false
	}

	// Incoming player replaces the outgoing one in the active roster and
	// in the session pool; the outgoing player stays settlement-eligible
	// via the substituted list.
	owner.SelectedPlayers[ownerIdx] = onID
	owner.SubstitutedPlayers = append(owner.SubstitutedPlayers, offID)
	for i, id := range s.pool {
		if id == offID {
			s.pool[i] = onID
			break
		}
	}

	off.Status = StatusSubbedOff
	off.StatusMinute = minute
	on.Status = StatusSubbedOn
	on.StatusMinute = minute

	sub := Substitution{
		ID:     uuid.New(),
		Out:    *off,
		In:     *on,
		Team:   off.Team,
		Minute: minute,
		At:     time.Now(),
	}
	s.substitutions = append(s.substitutions, sub)

	fn := s.onSubstitution
	s.mu.Unlock()

	if fn != nil {
		fn(sub)
	}
	return sub, true
}

// Reset clears all session state; a fresh idle session begins under the
// same id.
func (s *Session) Reset() {
	s.mu.Lock()
	s.participants = nil
	s.players = make(map[uuid.UUID]*Player)
	s.pool = nil
	s.bets = nil
	s.events = nil
	s.substitutions = nil
	s.applied = make(map[uuid.UUID]Deltas)
	fn := s.onReset
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// --- Read access ---

// Participants returns a copy of all participants.
func (s *Session) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Participant, len(s.participants))
	for i, p := range s.participants {
		out[i] = *p
		out[i].SelectedPlayers = append([]uuid.UUID(nil), p.SelectedPlayers...)
		out[i].SubstitutedPlayers = append([]uuid.UUID(nil), p.SubstitutedPlayers...)
	}
	return out
}

// Balances returns current balances keyed by participant id.
func (s *Session) Balances() map[uuid.UUID]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]decimal.Decimal, len(s.participants))
	for _, p := range s.participants {
		out[p.ID] = p.Balance
	}
	return out
}

// Players returns a copy of every registered player.
func (s *Session) Players() []Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

// Player returns one player by id.
func (s *Session) Player(id uuid.UUID) (Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Bets returns a copy of all bets.
func (s *Session) Bets() []Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Bet(nil), s.bets...)
}

// Events returns a copy of the event log, oldest first.
func (s *Session) Events() []GameEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]GameEvent(nil), s.events...)
}

// Substitutions returns the substitution timeline, oldest first.
func (s *Session) Substitutions() []Substitution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Substitution(nil), s.substitutions...)
}

// HolderOf returns the participant whose active roster contains the player.
func (s *Session) HolderOf(playerID uuid.UUID) (Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.participants {
		for _, id := range p.SelectedPlayers {
			if id == playerID {
				return *p, true
			}
		}
	}
	return Participant{}, false
}

// --- Snapshots ---

// Snapshot produces a serializable copy of the session under the given save
// name.
func (s *Session) Snapshot(name string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID: s.id,
		Name:      name,
		SavedAt:   time.Now(),
		Pool:      append([]uuid.UUID(nil), s.pool...),
		Bets:      append([]Bet(nil), s.bets...),
		Events:    append([]GameEvent(nil), s.events...),
	}
	for _, p := range s.participants {
		cp := *p
		cp.SelectedPlayers = append([]uuid.UUID(nil), p.SelectedPlayers...)
		cp.SubstitutedPlayers = append([]uuid.UUID(nil), p.SubstitutedPlayers...)
		snap.Participants = append(snap.Participants, cp)
	}
	for _, pl := range s.players {
		snap.Players = append(snap.Players, *pl)
	}
	snap.Substitutions = append([]Substitution(nil), s.substitutions...)
	return snap
}

// Restore replaces the session state with a snapshot. Balances are not
// taken from the snapshot; they are recomputed from the event log so a
// tampered or stale save can never desync balances from events.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	s.id = snap.SessionID
	s.participants = nil
	for _, p := range snap.Participants {
		cp := p
		s.participants = append(s.participants, &cp)
	}
	s.players = make(map[uuid.UUID]*Player, len(snap.Players))
	for _, pl := range snap.Players {
		cp := pl
		s.players[cp.ID] = &cp
	}
	s.pool = append([]uuid.UUID(nil), snap.Pool...)
	s.bets = append([]Bet(nil), snap.Bets...)
	s.events = append([]GameEvent(nil), snap.Events...)
	s.substitutions = append([]Substitution(nil), snap.Substitutions...)
	s.applied = make(map[uuid.UUID]Deltas)
	s.mu.Unlock()

	s.RecalculateBalances()
}
