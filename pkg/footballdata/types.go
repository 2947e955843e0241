// Package footballdata talks to a football match data API: live and
// upcoming matches, lineups, and per-match event feeds.
package footballdata

import "time"

// Match statuses reported by the API.
const (
	StatusScheduled = "SCHEDULED"
	StatusInPlay    = "IN_PLAY"
	StatusPaused    = "PAUSED"
	StatusFinished  = "FINISHED"
)

// TeamInfo is a team as the API describes it.
type TeamInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName,omitempty"`
	Crest     string `json:"crest,omitempty"`
}

// Score is a running match score.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Match is one fixture.
type Match struct {
	ID          string    `json:"id"`
	Competition string    `json:"competition"`
	HomeTeam    TeamInfo  `json:"homeTeam"`
	AwayTeam    TeamInfo  `json:"awayTeam"`
	Status      string    `json:"status"`
	KickoffUTC  time.Time `json:"utcDate"`
	Score       Score     `json:"score"`
	Minute      int       `json:"minute,omitempty"`
}

// MatchEvent is the wire shape of one in-match event. For substitutions the
// Off/On fields carry the players leaving and entering the pitch.
type MatchEvent struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Minute     int    `json:"minute"`
	TeamID     string `json:"teamId"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`

	OffPlayerID   string `json:"offPlayerId,omitempty"`
	OffPlayerName string `json:"offPlayerName,omitempty"`
	OnPlayerID    string `json:"onPlayerId,omitempty"`
	OnPlayerName  string `json:"onPlayerName,omitempty"`
}

// PlayerInfo is a player as the API describes it.
type PlayerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName,omitempty"`
	Shirt    int    `json:"shirtNumber,omitempty"`
}

// Lineup is the published starting lineup and bench for one match.
type Lineup struct {
	MatchID   string       `json:"matchId"`
	HomeStart []PlayerInfo `json:"homeStartingXI"`
	AwayStart []PlayerInfo `json:"awayStartingXI"`
	HomeBench []PlayerInfo `json:"homeBench"`
	AwayBench []PlayerInfo `json:"awayBench"`
}

// MatchUpdate is one monitoring delivery: the current match state plus the
// events not seen in earlier polls.
type MatchUpdate struct {
	Match     *Match
	NewEvents []MatchEvent
}
