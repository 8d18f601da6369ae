package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kaggather/gatherd/internal/gather"
	"github.com/kaggather/gatherd/internal/store"
)

type fakeAccounts struct {
	links map[string]string // chat id -> game name
	stats []store.StatsRecord
	fail  bool
}

func (f *fakeAccounts) AccountByChatID(chatID string) (store.Account, bool, error) {
	if f.fail {
		return store.Account{}, false, errors.New("db down")
	}
	name, ok := f.links[chatID]
	return store.Account{ChatID: chatID, GameName: name}, ok, nil
}

func (f *fakeAccounts) LinkAccounts(gameName, chatID string) error {
	if f.fail {
		return errors.New("db down")
	}
	f.links[chatID] = gameName
	return nil
}

func (f *fakeAccounts) TopPlayers(limit int) ([]store.StatsRecord, error) {
	if f.fail {
		return nil, errors.New("db down")
	}
	if limit > len(f.stats) {
		limit = len(f.stats)
	}
	return f.stats[:limit], nil
}

type fakeVerifier struct{ valid bool }

func (f fakeVerifier) VerifyToken(ctx context.Context, gameName, token string) (bool, error) {
	return f.valid, nil
}

func newTestAPI(t *testing.T, accounts Accounts, verifier TokenVerifier) (*API, http.Handler) {
	t.Helper()
	orc := gather.New(context.Background(), gather.Options{QueueSize: 2}, nil, nil, zap.NewNop())
	t.Cleanup(orc.Shutdown)
	api := &API{Orc: orc, Accounts: accounts, Verifier: verifier, Log: zap.NewNop()}
	return api, SetupRoutes(api)
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeAction(t *testing.T, rec *httptest.ResponseRecorder) actionResponse {
	t.Helper()
	var resp actionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestJoin_TrustsGameNameWithoutAccounts(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)

	rec := postJSON(t, h, "/queue/join", `{"chat_id":"c1","chat_name":"Alice","game_name":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeAction(t, rec)
	assert.Equal(t, "added", resp.Status)
	assert.Equal(t, 1, resp.QueueLen)
	assert.Equal(t, 2, resp.Capacity)

	// Without linking the game name is mandatory.
	rec = postJSON(t, h, "/queue/join", `{"chat_id":"c2","chat_name":"Bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/queue/join", `{"chat_id":"c2","chat_name":"Bob","game_name":"bob"}`)
	resp = decodeAction(t, rec)
	assert.Equal(t, "added_session_started", resp.Status)
	assert.Equal(t, int64(1), resp.SessionID)
}

func TestJoin_RequiresLinkedAccount(t *testing.T) {
	accounts := &fakeAccounts{links: map[string]string{"c1": "alice"}}
	_, h := newTestAPI(t, accounts, nil)

	rec := postJSON(t, h, "/queue/join", `{"chat_id":"c1","chat_name":"Alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "added", decodeAction(t, rec).Status)

	rec = postJSON(t, h, "/queue/join", `{"chat_id":"stranger","chat_name":"X"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_linked", decodeAction(t, rec).Status)
}

func TestJoin_AccountLookupFailure(t *testing.T) {
	_, h := newTestAPI(t, &fakeAccounts{fail: true}, nil)
	rec := postJSON(t, h, "/queue/join", `{"chat_id":"c1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLeaveAndInterested(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)
	postJSON(t, h, "/queue/join", `{"chat_id":"c1","game_name":"alice"}`)

	rec := postJSON(t, h, "/queue/leave", `{"chat_id":"c1"}`)
	assert.Equal(t, "removed", decodeAction(t, rec).Status)
	rec = postJSON(t, h, "/queue/leave", `{"chat_id":"c1"}`)
	assert.Equal(t, "not_queued", decodeAction(t, rec).Status)

	rec = postJSON(t, h, "/queue/interested", `{"chat_id":"c1"}`)
	assert.Equal(t, "interested", decodeAction(t, rec).Status)
	rec = postJSON(t, h, "/queue/interested", `{"chat_id":"c1"}`)
	assert.Equal(t, "not_interested", decodeAction(t, rec).Status)
}

func TestSetCapacity(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)
	rec := postJSON(t, h, "/queue/capacity", `{"size":6}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6, decodeAction(t, rec).Capacity)

	rec = postJSON(t, h, "/queue/capacity", `{"size":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEndSession_Validation(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)
	rec := postJSON(t, h, "/sessions/abc/end", `{"winner":"blue"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/sessions/1/end", `{"winner":"purple"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/sessions/1/end", `{"winner":"draw"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScoreboard(t *testing.T) {
	accounts := &fakeAccounts{
		links: map[string]string{},
		stats: []store.StatsRecord{{GameName: "alice", Games: 10, Wins: 7, Losses: 2, Draws: 1, Score: 5}},
	}
	_, h := newTestAPI(t, accounts, nil)

	req := httptest.NewRequest(http.MethodGet, "/scoreboard", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []store.StatsRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].GameName)
}

func TestScoreboard_UnavailableWithoutStorage(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/scoreboard", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLink(t *testing.T) {
	accounts := &fakeAccounts{links: map[string]string{}}
	_, h := newTestAPI(t, accounts, fakeVerifier{valid: true})

	rec := postJSON(t, h, "/link", `{"chat_id":"c1","game_name":"alice","token":"tok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "linked", decodeAction(t, rec).Status)
	assert.Equal(t, "alice", accounts.links["c1"])

	rec = postJSON(t, h, "/link", `{"chat_id":"c1","game_name":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLink_RejectsBadToken(t *testing.T) {
	accounts := &fakeAccounts{links: map[string]string{}}
	_, h := newTestAPI(t, accounts, fakeVerifier{valid: false})
	rec := postJSON(t, h, "/link", `{"chat_id":"c1","game_name":"alice","token":"bad"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, accounts.links)
}

func TestLink_UnavailableWithoutVerifier(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)
	rec := postJSON(t, h, "/link", `{"chat_id":"c1","game_name":"alice","token":"tok"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	_, h := newTestAPI(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
