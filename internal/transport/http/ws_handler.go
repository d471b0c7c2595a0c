package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// WSHandler streams ranking changes for one owner over a websocket.
type WSHandler struct {
	rankings *app.RankingService
	upgrader websocket.Upgrader
	logger   *log.Logger
}

func NewWSHandler(rankings *app.RankingService, logger *log.Logger) *WSHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &WSHandler{
		rankings: rankings,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeRankings upgrades the request and pushes a "ranking" message on every change.
// Clients only read; anything they send is discarded.
func (h *WSHandler) ServeRankings(w http.ResponseWriter, r *http.Request) {
	owner := domain.Owner{
		Kind: domain.OwnerKind(r.URL.Query().Get("kind")),
		ID:   r.URL.Query().Get("ownerId"),
	}
	if !owner.Kind.Valid() || owner.ID == "" {
		http.Error(w, "missing or invalid kind, ownerId", http.StatusBadRequest)
		return
	}

	updates, cancel, err := h.rankings.Subscribe(r.Context(), owner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage[domain.Ranking]{Type: "ranking", Payload: update}); err != nil {
				h.logger.Printf("ws write error: %v", err)
				return
			}
		case <-readerDone:
			return
		}
	}
}
