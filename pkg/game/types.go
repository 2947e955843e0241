// Package game implements the Lappeleken game session: participants are
// assigned football players, place bets on match events, and balances are
// transferred between participants as events are recorded.
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies a recordable match event.
type EventType string

const (
	EventGoal          EventType = "goal"
	EventAssist        EventType = "assist"
	EventYellowCard    EventType = "yellow_card"
	EventRedCard       EventType = "red_card"
	EventPenalty       EventType = "penalty"
	EventPenaltyMissed EventType = "penalty_missed"
	EventOwnGoal       EventType = "own_goal"
	EventCleanSheet    EventType = "clean_sheet"
	EventCustom        EventType = "custom"
)

// StandardEventTypes lists every non-custom event type a bet can target.
var StandardEventTypes = []EventType{
	EventGoal,
	EventAssist,
	EventYellowCard,
	EventRedCard,
	EventPenalty,
	EventPenaltyMissed,
	EventOwnGoal,
	EventCleanSheet,
}

// PlayerStatus tracks whether a player is on the pitch from the game's
// point of view.
type PlayerStatus string

const (
	StatusActive    PlayerStatus = "active"
	StatusSubbedOn  PlayerStatus = "substituted_on"
	StatusSubbedOff PlayerStatus = "substituted_off"
)

// Team holds display metadata for a football team. Immutable after creation.
type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ShortCode string    `json:"short_code,omitempty"`
	Color     string    `json:"color,omitempty"`
	CrestURL  string    `json:"crest_url,omitempty"`
}

// Player is a real or fictional football player owned by a participant for
// the duration of a session. Stat counters are mutated as events are
// recorded and reversed.
type Player struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"external_id,omitempty"` // id in the live data source, if any
	Name       string    `json:"name"`
	Team       Team      `json:"team"`
	Position   string    `json:"position,omitempty"`

	Goals       int `json:"goals"`
	Assists     int `json:"assists"`
	YellowCards int `json:"yellow_cards"`
	RedCards    int `json:"red_cards"`

	Status       PlayerStatus `json:"status"`
	StatusMinute int          `json:"status_minute,omitempty"` // minute of the last substitution affecting this player
}

// Bet is a wager on an event type. Amount is signed: positive means
// non-owners pay owners when the event fires, negative means owners pay
// non-owners. Custom bets are identified by CustomName rather than by type.
type Bet struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	CustomName string          `json:"custom_name,omitempty"` // set only when Type == EventCustom
}

// GameEvent is one entry in the append-only event log. The log is the sole
// source of truth for balances: replaying it must always reproduce them.
type GameEvent struct {
	ID         uuid.UUID `json:"id"`
	PlayerID   uuid.UUID `json:"player_id"`
	Type       EventType `json:"type"`
	BetID      uuid.UUID `json:"bet_id,omitempty"`      // set for custom events; pins the exact bet
	CustomName string    `json:"custom_name,omitempty"` // display name for custom events
	Minute     int       `json:"minute,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Participant is one person playing the game. SelectedPlayers is the active
// roster; SubstitutedPlayers holds players the participant used to own.
// Both lists count for settlement: events credited to a player who was later
// substituted off still pay out to the historical owner.
type Participant struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	SelectedPlayers    []uuid.UUID     `json:"selected_players"`
	SubstitutedPlayers []uuid.UUID     `json:"substituted_players"`
	Balance            decimal.Decimal `json:"balance"`
}

// Holds reports whether the participant owns the player now or owned it
// before a substitution.
func (p *Participant) Holds(playerID uuid.UUID) bool {
	for _, id := range p.SelectedPlayers {
		if id == playerID {
			return true
		}
	}
	for _, id := range p.SubstitutedPlayers {
		if id == playerID {
			return true
		}
	}
	return false
}

// Substitution records a roster swap for the audit timeline. It is never
// consulted by settlement; ownership is read from the participant lists at
// the moment an event is recorded.
type Substitution struct {
	ID     uuid.UUID `json:"id"`
	Out    Player    `json:"out"` // snapshot at the time of the swap
	In     Player    `json:"in"`
	Team   Team      `json:"team"`
	Minute int       `json:"minute,omitempty"`
	At     time.Time `json:"at"`
}

// Snapshot is a serializable copy of a whole session, used by the
// persistence gateway. Balances are not trusted on restore; the session
// recomputes them from the event log.
type Snapshot struct {
	SessionID     uuid.UUID      `json:"session_id"`
	Name          string         `json:"name"`
	SavedAt       time.Time      `json:"saved_at"`
	Participants  []Participant  `json:"participants"`
	Players       []Player       `json:"players"`
	Pool          []uuid.UUID    `json:"pool"`
	Bets          []Bet          `json:"bets"`
	Events        []GameEvent    `json:"events"`
	Substitutions []Substitution `json:"substitutions"`
}
