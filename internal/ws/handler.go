package ws

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/kaggather/gatherd/internal/gather"
)

// Handler streams orchestrator notices to a front-end client. Each client
// gets its own subscription; a client that stops draining is dropped by
// the orchestrator's broadcast rather than allowed to stall it.
func Handler(orc *gather.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := randID(6)
		out := orc.Subscribe(clientID, 16)
		defer orc.Unsubscribe(clientID)

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for notice := range out {
				payload, _ := json.Marshal(notice)
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// The feed is one-way; reading only detects the close.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
