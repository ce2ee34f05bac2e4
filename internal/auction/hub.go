package auction

/*
Файл hub.go выставляет ленту ставок наружу как websocket-эндпоинт.
Каждое соединение получает собственный цикл Feed.Stream; закрытие сокета
клиентом гасит контекст и останавливает опрос.
*/

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

type Hub struct {
	feed     *Feed
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(feed *Feed, logger *zap.Logger) *Hub {
	return &Hub{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Лента публичная и read-only, origin не ограничиваем
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("bid-hub"),
	}
}

// ServeLoanFeed апгрейдит соединение и транслирует события ленты.
func (h *Hub) ServeLoanFeed(w http.ResponseWriter, r *http.Request, loanID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Читатель нужен только чтобы заметить закрытие со стороны клиента
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	events := h.feed.Stream(ctx, loanID)
	pings := time.NewTicker(pingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pings.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("feed write failed, dropping client",
					zap.String("loan_id", loanID), zap.Error(err))
				return
			}
		}
	}
}
