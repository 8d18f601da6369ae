package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kaggather/gatherd/internal/ws"
)

// SetupRoutes builds the router with the API injected.
func SetupRoutes(a *API) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)

	r.Get("/queue", a.queueContents)
	r.Post("/queue/join", a.join)
	r.Post("/queue/leave", a.leave)
	r.Post("/queue/interested", a.interested)
	r.Post("/queue/capacity", a.setCapacity)

	r.Get("/sessions", a.sessions)
	r.Post("/sessions/{id}/end", a.endSession)
	r.Post("/scramble-vote", a.scrambleVote)
	r.Post("/sub", a.takeSubSlot)

	r.Get("/scoreboard", a.scoreboard)
	r.Post("/link", a.link)

	r.Post("/hosts/{addr}/{port}/connect", a.hostOp(true))
	r.Post("/hosts/{addr}/{port}/disconnect", a.hostOp(false))

	r.Get("/feed", ws.Handler(a.Orc))
	return r
}
