package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/haakonros/lappeleken/pkg/footballdata"
	"github.com/haakonros/lappeleken/pkg/game"
	"github.com/haakonros/lappeleken/pkg/ingest"
	"github.com/haakonros/lappeleken/pkg/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Status())
}

// sessionFromPath resolves the {id} path variable to a session, writing the
// error response itself on failure.
func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) (*game.Session, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	session, ok := s.manager.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// --- Sessions ---

type sessionSummary struct {
	ID            uuid.UUID          `json:"id"`
	Participants  []game.Participant `json:"participants"`
	Players       []game.Player      `json:"players"`
	Bets          []game.Bet         `json:"bets"`
	Events        int                `json:"events"`
	Substitutions int                `json:"substitutions"`
	LiveMatch     string             `json:"live_match,omitempty"`
}

func (s *Server) summarize(session *game.Session) sessionSummary {
	sum := sessionSummary{
		ID:            session.ID(),
		Participants:  session.Participants(),
		Players:       session.Players(),
		Bets:          session.Bets(),
		Events:        len(session.Events()),
		Substitutions: len(session.Substitutions()),
	}
	if match, ok := s.monitors.Active(session.ID()); ok {
		sum.LiveMatch = match
	}
	return sum
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := s.manager.Create()
	s.wireSession(session)
	s.metrics.UpdateActiveSessions(s.manager.Count())
	s.hub.BroadcastSession(session.ID().String(), "created")
	s.log.WithField("session", session.ID()).Info("session created")

	writeJSON(w, http.StatusCreated, s.summarize(session))
}

// wireSession hooks session callbacks into streaming and metrics.
func (s *Server) wireSession(session *game.Session) {
	id := session.ID().String()

	session.OnEvent(func(ev game.GameEvent, deltas game.Deltas) {
		s.metrics.RecordEvent(string(ev.Type), deltas.Volume())
		s.hub.BroadcastGameEvent(id, map[string]interface{}{
			"event":  ev,
			"deltas": deltas,
		})
		s.hub.BroadcastBalances(id, session.Balances())
		s.updateBalanceMetrics(session)
	})
	session.OnUndo(func(ev game.GameEvent) {
		s.metrics.RecordUndo()
		s.hub.BroadcastBalances(id, session.Balances())
		s.updateBalanceMetrics(session)
	})
	session.OnSubstitution(func(sub game.Substitution) {
		s.metrics.RecordSubstitution()
		s.hub.BroadcastSubstitution(id, sub)
	})
}

// updateBalanceMetrics pushes every participant balance to the gauge.
func (s *Server) updateBalanceMetrics(session *game.Session) {
	id := session.ID().String()
	for _, p := range session.Participants() {
		s.metrics.UpdateBalance(id, p.ID.String(), p.Balance)
	}
}

// ingestorFor returns the session's feed ingestor, creating it on first
// use. The ingestor is bound to the session, not to one polling run, so
// its duplicate memory holds across live mode stop/start cycles.
func (s *Server) ingestorFor(session *game.Session) *ingest.Ingestor {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if in, ok := s.ingestors[session.ID()]; ok {
		return in
	}
	in := ingest.New(session, s.log.Logger)
	in.OnDiscard(func(_ footballdata.MatchEvent, reason string) {
		s.metrics.RecordDiscard(reason)
	})
	s.ingestors[session.ID()] = in
	return in
}

func (s *Server) dropIngestor(sessionID uuid.UUID) {
	s.ingestMu.Lock()
	delete(s.ingestors, sessionID)
	s.ingestMu.Unlock()
}

// refreshIngestor rebuilds the feed player index after roster changes made
// outside the ingestor, if the session has one.
func (s *Server) refreshIngestor(sessionID uuid.UUID) {
	s.ingestMu.Lock()
	in := s.ingestors[sessionID]
	s.ingestMu.Unlock()
	if in != nil {
		in.RefreshPlayers()
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids := s.manager.IDs()
	out := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		if session, ok := s.manager.Get(id); ok {
			out = append(out, s.summarize(session))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":            session.ID(),
		"participants":  session.Participants(),
		"players":       session.Players(),
		"bets":          session.Bets(),
		"events":        session.Events(),
		"substitutions": session.Substitutions(),
		"balances":      session.Balances(),
		"can_undo":      session.CanUndo(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	s.monitors.Stop(session.ID())
	s.dropIngestor(session.ID())
	s.manager.End(session.ID())
	s.metrics.UpdateActiveSessions(s.manager.Count())
	s.hub.BroadcastSession(session.ID().String(), "ended")
	s.log.WithField("session", session.ID()).Info("session ended")

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	session.Reset()
	s.hub.BroadcastSession(session.ID().String(), "reset")
	writeJSON(w, http.StatusOK, s.summarize(session))
}

// --- Setup ---

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	p := session.AddParticipant(body.Name)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAddPlayer(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Name       string    `json:"name"`
		ExternalID string    `json:"external_id"`
		Position   string    `json:"position"`
		Team       game.Team `json:"team"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	player := session.AddPlayer(game.Player{
		Name:       body.Name,
		ExternalID: body.ExternalID,
		Position:   body.Position,
		Team:       body.Team,
	})
	s.refreshIngestor(session.ID())
	writeJSON(w, http.StatusCreated, player)
}

func (s *Server) handleAddBet(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Type       game.EventType  `json:"type"`
		CustomName string          `json:"custom_name"`
		Amount     decimal.Decimal `json:"amount"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var bet game.Bet
	var err error
	if body.CustomName != "" || body.Type == game.EventCustom {
		bet, err = session.AddCustomBet(body.CustomName, body.Amount)
	} else {
		bet, err = session.AddBet(body.Type, body.Amount)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	session.AssignPlayersRandomly()
	writeJSON(w, http.StatusOK, session.Participants())
}

// --- Events ---

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		PlayerID   uuid.UUID      `json:"player_id"`
		Type       game.EventType `json:"type"`
		CustomName string         `json:"custom_name"`
		Minute     int            `json:"minute"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var ev game.GameEvent
	var err error
	if body.CustomName != "" || body.Type == game.EventCustom {
		ev, err = session.RecordCustomEvent(body.PlayerID, body.CustomName)
	} else {
		ev, err = session.RecordEventAt(body.PlayerID, body.Type, body.Minute)
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"event":    ev,
		"balances": session.Balances(),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Events())
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	ev, err := session.UndoLastEvent()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"undone":   ev,
		"balances": session.Balances(),
	})
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	session.RecalculateBalances()
	writeJSON(w, http.StatusOK, session.Balances())
}

func (s *Server) handleSubstitute(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		OffPlayerID uuid.UUID `json:"off_player_id"`
		OnPlayerID  uuid.UUID `json:"on_player_id"`
		Minute      int       `json:"minute"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	sub, ok := session.SubstitutePlayer(body.OffPlayerID, body.OnPlayerID, body.Minute)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "substitution not possible: players unknown or not in an active roster")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// --- Persistence ---

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		body.Name = "autosave"
	}

	id, err := s.store.Save(session.Snapshot(body.Name))
	if err != nil {
		s.log.WithError(err).Error("save failed")
		writeError(w, http.StatusInternalServerError, "failed to save game")
		return
	}
	s.metrics.RecordSave()
	writeJSON(w, http.StatusCreated, map[string]interface{}{"save_id": id})
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.Nil
	if q := r.URL.Query().Get("session"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		sessionID = id
	}
	saves, err := s.store.ListSaves(sessionID)
	if err != nil {
		s.log.WithError(err).Error("list saves failed")
		writeError(w, http.StatusInternalServerError, "failed to list saves")
		return
	}
	if saves == nil {
		saves = []store.SaveInfo{}
	}
	writeJSON(w, http.StatusOK, saves)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	saveID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid save id")
		return
	}
	snap, err := s.store.Load(saveID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "save not found")
			return
		}
		s.log.WithError(err).Error("load failed")
		writeError(w, http.StatusInternalServerError, "failed to load save")
		return
	}

	// Restore into the live session when it still exists, otherwise revive
	// it under its original id. Any existing ingestor is dropped: the
	// restored event log replaces the one it deduped against.
	s.dropIngestor(snap.SessionID)
	session, ok := s.manager.Get(snap.SessionID)
	if !ok {
		session = game.NewSession()
		s.wireSession(session)
	}
	session.Restore(snap)
	s.manager.Register(session)
	s.metrics.UpdateActiveSessions(s.manager.Count())
	s.hub.BroadcastSession(session.ID().String(), "restored")
	s.log.WithFields(logrus.Fields{"session": session.ID(), "save": saveID}).Info("session restored")

	writeJSON(w, http.StatusOK, s.summarize(session))
}

func (s *Server) handleDeleteSave(w http.ResponseWriter, r *http.Request) {
	saveID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid save id")
		return
	}
	if err := s.store.Delete(saveID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "save not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete save")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Live matches ---

func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	var body struct {
		MatchID string `json:"match_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.MatchID == "" {
		writeError(w, http.StatusUnprocessableEntity, "match_id is required")
		return
	}

	if !s.gate.CanUseLiveFeatures() {
		writeError(w, http.StatusForbidden, "daily live match limit reached")
		return
	}

	sessionID := session.ID()
	in := s.ingestorFor(session)

	_, wasPolling := s.monitors.Active(sessionID)

	// Polling outlives the request; it is stopped via /live/stop or session end.
	err := s.monitors.Start(context.Background(), sessionID, body.MatchID, s.source, s.pollInterval,
		func(update *footballdata.MatchUpdate) {
			s.metrics.RecordPoll()
			res := in.Apply(update.NewEvents)
			s.metrics.RecordDuplicates(res.Duplicates)
			s.hub.BroadcastMatch(sessionID.String(), update.Match)
		},
		func(err error) {
			s.metrics.RecordPollError()
			s.hub.BroadcastError(sessionID.String(), err, "poll")
		},
	)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	// Restarting the same session's poll replaces the old task and does not
	// consume another daily match.
	if !wasPolling {
		_ = s.gate.ConsumeLiveMatch()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"match_id":   body.MatchID,
	})
}

func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	if !s.monitors.Stop(session.ID()) {
		writeError(w, http.StatusConflict, "session is not polling")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
