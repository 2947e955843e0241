// Package ingest maps raw match feed events onto game sessions: type
// mapping, player resolution, substitution routing, and duplicate
// suppression across polls.
package ingest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/footballdata"
	"github.com/haakonros/lappeleken/pkg/game"
)

// eventTypeMap translates feed event type strings, including the synonyms
// different providers use, onto game event types.
var eventTypeMap = map[string]game.EventType{
	"goal":           game.EventGoal,
	"regular_goal":   game.EventGoal,
	"assist":         game.EventAssist,
	"yellow_card":    game.EventYellowCard,
	"yellowcard":     game.EventYellowCard,
	"booking":        game.EventYellowCard,
	"red_card":       game.EventRedCard,
	"redcard":        game.EventRedCard,
	"dismissal":      game.EventRedCard,
	"penalty":        game.EventPenalty,
	"penalty_goal":   game.EventPenalty,
	"penalty_missed": game.EventPenaltyMissed,
	"missed_penalty": game.EventPenaltyMissed,
	"own_goal":       game.EventOwnGoal,
	"owngoal":        game.EventOwnGoal,
	"clean_sheet":    game.EventCleanSheet,
}

// MapEventType translates a feed event type string. The second return is
// false for types the game has no bet category for.
func MapEventType(raw string) (game.EventType, bool) {
	t, ok := eventTypeMap[normalizeName(raw)]
	return t, ok
}

const subEventType = "substitution"

// Result counts what one Apply call did with a batch of feed events.
type Result struct {
	Recorded      int
	Substitutions int
	Duplicates    int
	Unresolved    int
	Discarded     int
}

// Ingestor feeds match events into one session. It is the only writer on
// the live path, and it remembers every event it has applied so re-polled
// events are dropped no matter how the provider keys them.
type Ingestor struct {
	session *game.Session
	log     *logrus.Entry

	mu     sync.Mutex
	seen   map[string]struct{} // composite dedup keys
	byExt  map[string]uuid.UUID
	byName map[string]uuid.UUID

	onDiscard func(ev footballdata.MatchEvent, reason string)
}

// New creates an ingestor bound to a session. The player index is built
// once; call RefreshPlayers after roster changes made outside this ingestor.
func New(session *game.Session, log *logrus.Logger) *Ingestor {
	in := &Ingestor{
		session: session,
		log:     log.WithField("component", "ingest").WithField("session", session.ID()),
		seen:    make(map[string]struct{}),
	}
	in.RefreshPlayers()
	return in
}

// OnDiscard registers a callback invoked for every event that could not be
// applied, with a short machine-readable reason.
func (in *Ingestor) OnDiscard(fn func(ev footballdata.MatchEvent, reason string)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.onDiscard = fn
}

// RefreshPlayers rebuilds the external-id and normalized-name indexes from
// the session roster.
func (in *Ingestor) RefreshPlayers() {
	byExt := make(map[string]uuid.UUID)
	byName := make(map[string]uuid.UUID)
	for _, p := range in.session.Players() {
		if p.ExternalID != "" {
			byExt[p.ExternalID] = p.ID
		}
		byName[normalizeName(p.Name)] = p.ID
	}

	in.mu.Lock()
	in.byExt = byExt
	in.byName = byName
	in.mu.Unlock()
}

// dedupKey is stable across polls even when the provider omits event ids:
// the id when present, otherwise minute, type and player together.
func dedupKey(ev footballdata.MatchEvent) string {
	player := ev.PlayerID
	if player == "" {
		player = ev.OffPlayerID
	}
	return fmt.Sprintf("%s|%d|%s|%s", ev.ID, ev.Minute, ev.Type, player)
}

// Apply records a batch of feed events against the session and reports what
// happened to each. Events for players outside the roster are discarded and
// logged, never errors; a half-known batch still applies the known half.
func (in *Ingestor) Apply(events []footballdata.MatchEvent) Result {
	var res Result
	for _, ev := range events {
		in.mu.Lock()
		key := dedupKey(ev)
		if _, dup := in.seen[key]; dup {
			in.mu.Unlock()
			res.Duplicates++
			continue
		}
		in.seen[key] = struct{}{}
		in.mu.Unlock()

		switch {
		case normalizeName(ev.Type) == subEventType:
			if in.applySubstitution(ev) {
				res.Substitutions++
			} else {
				res.Discarded++
			}
		default:
			switch in.applyEvent(ev) {
			case applied:
				res.Recorded++
			case unresolvedPlayer:
				res.Unresolved++
			default:
				res.Discarded++
			}
		}
	}
	return res
}

type applyOutcome int

const (
	applied applyOutcome = iota
	unresolvedPlayer
	discarded
)

func (in *Ingestor) applyEvent(ev footballdata.MatchEvent) applyOutcome {
	t, ok := MapEventType(ev.Type)
	if !ok {
		in.discard(ev, "unknown_type")
		return discarded
	}

	playerID, ok := in.resolve(ev.PlayerID, ev.PlayerName)
	if !ok {
		in.discard(ev, "unresolved_player")
		return unresolvedPlayer
	}

	if _, err := in.session.RecordEventAt(playerID, t, ev.Minute); err != nil {
		in.log.WithError(err).WithField("event", ev.ID).Warn("record failed")
		in.discard(ev, "record_failed")
		return discarded
	}
	return applied
}

// applySubstitution swaps rosters when the outgoing player is owned by a
// participant. The incoming player is added to the session if unknown, so
// later events for them resolve.
func (in *Ingestor) applySubstitution(ev footballdata.MatchEvent) bool {
	offID, ok := in.resolve(ev.OffPlayerID, ev.OffPlayerName)
	if !ok {
		in.discard(ev, "unresolved_player")
		return false
	}

	onID, ok := in.resolve(ev.OnPlayerID, ev.OnPlayerName)
	if !ok {
		off, _ := in.session.Player(offID)
		added := in.session.AddPlayer(game.Player{
			ExternalID: ev.OnPlayerID,
			Name:       ev.OnPlayerName,
			Team:       off.Team,
		})
		onID = added.ID
		in.RefreshPlayers()
	}

	if _, swapped := in.session.SubstitutePlayer(offID, onID, ev.Minute); !swapped {
		in.discard(ev, "player_not_owned")
		return false
	}
	in.log.WithFields(logrus.Fields{
		"off":    ev.OffPlayerName,
		"on":     ev.OnPlayerName,
		"minute": ev.Minute,
	}).Info("substitution applied")
	return true
}

// resolve maps a feed player onto a session player, preferring the stable
// external id and falling back to the normalized name.
func (in *Ingestor) resolve(externalID, name string) (uuid.UUID, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if externalID != "" {
		if id, ok := in.byExt[externalID]; ok {
			return id, true
		}
	}
	if name != "" {
		if id, ok := in.byName[normalizeName(name)]; ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (in *Ingestor) discard(ev footballdata.MatchEvent, reason string) {
	in.log.WithFields(logrus.Fields{
		"event":  ev.ID,
		"type":   ev.Type,
		"player": ev.PlayerName,
		"reason": reason,
	}).Debug("event discarded")

	in.mu.Lock()
	fn := in.onDiscard
	in.mu.Unlock()
	if fn != nil {
		fn(ev, reason)
	}
}
