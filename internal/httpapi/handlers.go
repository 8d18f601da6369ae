package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kaggather/gatherd/internal/gather"
	"github.com/kaggather/gatherd/internal/hostlink"
	"github.com/kaggather/gatherd/internal/player"
	"github.com/kaggather/gatherd/internal/queue"
	"github.com/kaggather/gatherd/internal/session"
	"github.com/kaggather/gatherd/internal/store"
)

// Accounts is the slice of the storage collaborator the API uses for
// identity resolution and the scoreboard.
type Accounts interface {
	AccountByChatID(chatID string) (store.Account, bool, error)
	LinkAccounts(gameName, chatID string) error
	TopPlayers(limit int) ([]store.StatsRecord, error)
}

// TokenVerifier is the third-party identity-linking collaborator.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, gameName, token string) (bool, error)
}

// API exposes the orchestrator to the chat-platform front end. The front
// end is a trusted collaborator: it authenticates its users and gates the
// admin operations itself.
type API struct {
	Orc      *gather.Orchestrator
	Accounts Accounts      // nil degrades linking and the scoreboard
	Verifier TokenVerifier // nil disables new links
	Log      *zap.Logger
}

type userRequest struct {
	ChatID   string `json:"chat_id"`
	ChatName string `json:"chat_name,omitempty"`
	GameName string `json:"game_name,omitempty"`
}

type actionResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	QueueLen  int    `json:"queue_len,omitempty"`
	Capacity  int    `json:"capacity,omitempty"`
	SessionID int64  `json:"session_id,omitempty"`
	Votes     int    `json:"votes,omitempty"`
	Quorum    int    `json:"quorum,omitempty"`
}

// resolve turns a front-end user reference into a player identity. Linked
// accounts win; without a storage collaborator the request's own game name
// is trusted.
func (a *API) resolve(w http.ResponseWriter, req userRequest) (player.Player, bool) {
	if req.ChatID == "" {
		httpError(w, http.StatusBadRequest, "chat_id is required")
		return player.Player{}, false
	}
	p := player.Player{ID: player.ID(req.ChatID), ChatName: req.ChatName, GameName: req.GameName}
	if a.Accounts == nil {
		if p.GameName == "" {
			httpError(w, http.StatusBadRequest, "game_name is required when linking is unavailable")
			return player.Player{}, false
		}
		return p, true
	}
	acc, linked, err := a.Accounts.AccountByChatID(req.ChatID)
	if err != nil {
		a.Log.Warn("account lookup failed", zap.Error(err))
		httpError(w, http.StatusServiceUnavailable, "account lookup unavailable, try again")
		return player.Player{}, false
	}
	if !linked {
		writeJSON(w, http.StatusForbidden, actionResponse{Status: "not_linked",
			Message: "link your game account first"})
		return player.Player{}, false
	}
	p.GameName = acc.GameName
	return p, true
}

func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	p, ok := a.resolve(w, req)
	if !ok {
		return
	}
	out := a.Orc.Join(p)
	resp := actionResponse{QueueLen: out.QueueLen, Capacity: out.Capacity, SessionID: out.SessionID}
	switch out.Status {
	case gather.JoinAdded:
		resp.Status = "added"
	case gather.JoinStartedSession:
		resp.Status = "added_session_started"
	case gather.JoinAlreadyQueued:
		resp.Status = "already_queued"
	case gather.JoinAlreadyInGame:
		resp.Status = "already_in_game"
	case gather.JoinPoolBusy:
		resp.Status = "try_again"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) leave(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	status := "not_queued"
	if a.Orc.Leave(player.ID(req.ChatID)) == queue.Removed {
		status = "removed"
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: status})
}

func (a *API) interested(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	status := "interested"
	if a.Orc.ToggleInterested(player.ID(req.ChatID)) == queue.RemovedInterested {
		status = "not_interested"
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: status})
}

func (a *API) setCapacity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Size int `json:"size"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := a.Orc.SetCapacity(req.Size); err != nil {
		httpError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: "capacity_set", Capacity: req.Size})
}

func (a *API) queueContents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Orc.QueueContents())
}

func (a *API) sessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Orc.Sessions())
}

func (a *API) scrambleVote(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	out := a.Orc.CastScrambleVote(player.ID(req.ChatID))
	resp := actionResponse{Votes: out.Votes, Quorum: out.Quorum}
	switch out.Status {
	case gather.ScrambleNoGame:
		resp.Status = "no_game"
	case gather.ScrambleAlreadyVoted:
		resp.Status = "already_voted"
	case gather.ScrambleCounted:
		resp.Status = "vote_counted"
	case gather.ScrambleShuffled:
		resp.Status = "teams_shuffled"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) takeSubSlot(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	p, ok := a.resolve(w, req)
	if !ok {
		return
	}
	out := a.Orc.TakeSubSlot(p)
	resp := actionResponse{SessionID: out.SessionID}
	switch out.Status {
	case gather.SubSlotNoRequest:
		resp.Status = "no_sub_needed"
	case gather.SubSlotAlreadyInGame:
		resp.Status = "already_in_game"
	case gather.SubSlotTaken:
		resp.Status = "subbed_in"
		resp.Message = "substituted in for " + out.Outgoing.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) endSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad session id")
		return
	}
	var req struct {
		Winner string `json:"winner"` // "blue", "red", "draw" or "none"
	}
	if !decode(w, r, &req) {
		return
	}
	winner, ok := parseResult(req.Winner)
	if !ok {
		httpError(w, http.StatusBadRequest, "winner must be blue, red, draw or none")
		return
	}
	if err := a.Orc.EndSession(id, winner); err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: "ended", SessionID: id})
}

func (a *API) scoreboard(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil {
		httpError(w, http.StatusServiceUnavailable, "scoreboard unavailable")
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rows, err := a.Accounts.TopPlayers(limit)
	if err != nil {
		a.Log.Warn("scoreboard query failed", zap.Error(err))
		httpError(w, http.StatusServiceUnavailable, "scoreboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) link(w http.ResponseWriter, r *http.Request) {
	if a.Accounts == nil || a.Verifier == nil {
		httpError(w, http.StatusServiceUnavailable, "account linking unavailable")
		return
	}
	var req struct {
		ChatID   string `json:"chat_id"`
		GameName string `json:"game_name"`
		Token    string `json:"token"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ChatID == "" || req.GameName == "" || req.Token == "" {
		httpError(w, http.StatusBadRequest, "chat_id, game_name and token are required")
		return
	}
	valid, err := a.Verifier.VerifyToken(r.Context(), req.GameName, req.Token)
	if err != nil {
		a.Log.Warn("token verification failed", zap.Error(err))
		httpError(w, http.StatusServiceUnavailable, "the identity service could not be reached")
		return
	}
	if !valid {
		httpError(w, http.StatusForbidden, "the supplied token was not valid")
		return
	}
	if err := a.Accounts.LinkAccounts(req.GameName, req.ChatID); err != nil {
		a.Log.Warn("storing account link failed", zap.Error(err))
		httpError(w, http.StatusServiceUnavailable, "an error occured linking your accounts")
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Status: "linked"})
}

func (a *API) hostOp(connect bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		port, err := strconv.Atoi(chi.URLParam(r, "port"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "bad port")
			return
		}
		key := hostlink.Key{Addr: chi.URLParam(r, "addr"), Port: port}
		if connect {
			err = a.Orc.ConnectHost(key)
		} else {
			err = a.Orc.DisconnectHost(key)
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, actionResponse{Status: "ok"})
	}
}

func parseResult(s string) (session.Result, bool) {
	switch s {
	case "blue":
		return session.ResultBlueWin, true
	case "red":
		return session.ResultRedWin, true
	case "draw":
		return session.ResultDraw, true
	case "none":
		return session.ResultNone, true
	}
	return "", false
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, actionResponse{Status: "error", Message: msg})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
