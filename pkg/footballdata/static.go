package footballdata

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StaticSource is the degraded fallback used when no API token is
// configured: a canned match with a scripted event feed, so a game is
// playable offline. Each call to Advance releases the next scripted event.
type StaticSource struct {
	mu       sync.Mutex
	match    Match
	players  []PlayerInfo
	script   []MatchEvent
	released int
}

// NewStaticSource builds the sample fixture.
func NewStaticSource() *StaticSource {
	home := TeamInfo{ID: "home", Name: "Rosenborg BK", ShortName: "RBK"}
	away := TeamInfo{ID: "away", Name: "Molde FK", ShortName: "MFK"}

	return &StaticSource{
		match: Match{
			ID:          "sample-1",
			Competition: "ELITESERIEN",
			HomeTeam:    home,
			AwayTeam:    away,
			Status:      StatusInPlay,
			KickoffUTC:  time.Now().UTC(),
		},
		players: []PlayerInfo{
			{ID: "p1", Name: "Ole Sæter", Position: "Forward", TeamID: home.ID, TeamName: home.Name, Shirt: 9},
			{ID: "p2", Name: "Markus Henriksen", Position: "Midfielder", TeamID: home.ID, TeamName: home.Name, Shirt: 8},
			{ID: "p3", Name: "Magnus Wolff Eikrem", Position: "Midfielder", TeamID: away.ID, TeamName: away.Name, Shirt: 10},
			{ID: "p4", Name: "Eirik Hestad", Position: "Midfielder", TeamID: away.ID, TeamName: away.Name, Shirt: 7},
			{ID: "p5", Name: "Sivert Mannsverk", Position: "Midfielder", TeamID: away.ID, TeamName: away.Name, Shirt: 6},
			{ID: "p6", Name: "Erlend Dahl Reitan", Position: "Defender", TeamID: home.ID, TeamName: home.Name, Shirt: 2},
		},
		script: []MatchEvent{
			{ID: "ev1", Type: "goal", Minute: 12, TeamID: home.ID, PlayerID: "p1", PlayerName: "Ole Sæter"},
			{ID: "ev2", Type: "yellow_card", Minute: 27, TeamID: away.ID, PlayerID: "p4", PlayerName: "Eirik Hestad"},
			{ID: "ev3", Type: "goal", Minute: 41, TeamID: away.ID, PlayerID: "p3", PlayerName: "Magnus Wolff Eikrem"},
			{ID: "ev4", Type: "substitution", Minute: 63, TeamID: home.ID,
				OffPlayerID: "p2", OffPlayerName: "Markus Henriksen",
				OnPlayerID: "p6", OnPlayerName: "Erlend Dahl Reitan"},
			{ID: "ev5", Type: "red_card", Minute: 77, TeamID: away.ID, PlayerID: "p5", PlayerName: "Sivert Mannsverk"},
		},
	}
}

// Capabilities reports enhanced: the sample data includes an event feed.
func (s *StaticSource) Capabilities() Tier { return TierEnhanced }

// FetchMatch returns the sample match with a score reflecting the released
// portion of the script.
func (s *StaticSource) FetchMatch(ctx context.Context, matchID string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if matchID != s.match.ID {
		return nil, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
	}
	m := s.match
	for _, ev := range s.script[:s.released] {
		if ev.Type != "goal" {
			continue
		}
		if ev.TeamID == m.HomeTeam.ID {
			m.Score.Home++
		} else {
			m.Score.Away++
		}
		m.Minute = ev.Minute
	}
	return &m, nil
}

// FetchMatchEvents returns every event released so far.
func (s *StaticSource) FetchMatchEvents(ctx context.Context, matchID string) ([]MatchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if matchID != s.match.ID {
		return nil, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
	}
	return append([]MatchEvent(nil), s.script[:s.released]...), nil
}

// FetchLiveMatches lists the sample match.
func (s *StaticSource) FetchLiveMatches(ctx context.Context, competition string) ([]Match, error) {
	m, _ := s.FetchMatch(ctx, s.match.ID)
	return []Match{*m}, nil
}

// FetchMatchPlayers returns the sample players.
func (s *StaticSource) FetchMatchPlayers(ctx context.Context, matchID string) ([]PlayerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if matchID != s.match.ID {
		return nil, fmt.Errorf("%w: match %s", ErrNotFound, matchID)
	}
	return append([]PlayerInfo(nil), s.players...), nil
}

// MatchID returns the id of the sample match.
func (s *StaticSource) MatchID() string { return s.match.ID }

// Advance releases the next scripted event, if any remain.
func (s *StaticSource) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released >= len(s.script) {
		return false
	}
	s.released++
	return true
}
