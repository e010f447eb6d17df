package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ironlibrary/loan-service/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type eventResponse struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	Loan       loanResponse `json:"loan"`
	OccurredAt string       `json:"occurredAt"`
}

// StreamEvents транслирует события изменений выдач по WebSocket.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	eventCh, unsubscribe := h.hub.Subscribe(16)
	defer unsubscribe()

	// Входящие сообщения не обрабатываются, чтение нужно только для
	// своевременного обнаружения закрытия соединения клиентом.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}

			resp := eventResponse{
				ID:         event.ID.String(),
				Type:       string(event.Type),
				Loan:       loanToResponse(event.Loan, model.DateOf(time.Now())),
				OccurredAt: event.OccurredAt.Format(time.RFC3339),
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}
}
