// Package live streams reconciled session views to scoreboard clients.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/nvaldebenito/loungetime/internal/session"
)

// Lister is the controller surface the feed depends on. Every push goes
// through a full reconciled read, so expired sessions are paused and
// persisted as a side effect of being observed.
type Lister interface {
	List(ctx context.Context) ([]*session.View, error)
}

// Feed pushes the full reconciled view list over a websocket on a fixed
// interval until the client goes away.
type Feed struct {
	svc      Lister
	interval time.Duration
}

// NewFeed creates a scoreboard feed pushing every interval.
func NewFeed(svc Lister, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{svc: svc, interval: interval}
}

// ServeHTTP upgrades to a websocket and streams until disconnect.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Scoreboard feed connection", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept scoreboard websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close scoreboard websocket", "error", closeErr)
		}
	}()

	// No client messages are expected; CloseRead watches for disconnect.
	ctx := ws.CloseRead(r.Context())

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.push(ctx, ws); err != nil {
			slog.Debug("Scoreboard feed ended", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (f *Feed) push(ctx context.Context, ws *websocket.Conn) error {
	views, err := f.svc.List(ctx)
	if err != nil {
		slog.Error("Scoreboard push failed", "error", err)
		return err
	}
	data, err := json.Marshal(views)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
