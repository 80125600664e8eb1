package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/captify/captify/internal/services/web/session"
	"github.com/captify/captify/internal/services/web/sessioncache"
)

// eventBuffer bounds the frames queued for one slow client. Overflowing
// events are dropped for that client only.
const eventBuffer = 32

// frameSubscribed is written once the stream listens to the cache.
const frameSubscribed = "subscribed"

var streamedEvents = []sessioncache.EventType{
	sessioncache.EventApplicationsUpdated,
	sessioncache.EventUsersUpdated,
	sessioncache.EventReady,
	sessioncache.EventCleared,
}

type eventFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// handleCacheEvents streams the session cache events over a websocket.
func (a *API) handleCacheEvents(w http.ResponseWriter, r *http.Request, sc *session.Context) {
	websocket.Handler(func(conn *websocket.Conn) {
		a.streamEvents(conn, sc)
	}).ServeHTTP(w, r)
}

func (a *API) streamEvents(conn *websocket.Conn, sc *session.Context) {
	defer func() {
		_ = conn.Close()
	}()
	logger := a.logger.With(zap.String("session_id", sc.ID))

	events := make(chan sessioncache.Event, eventBuffer)
	listener := func(event sessioncache.Event) {
		select {
		case events <- event:
		default:
			logger.Warn("cache event dropped", zap.String("event", string(event.Type)))
		}
	}
	subscriptions := make([]sessioncache.Subscription, 0, len(streamedEvents))
	for _, eventType := range streamedEvents {
		subscriptions = append(subscriptions, sc.Cache.OnFunc(eventType, listener))
	}
	defer func() {
		for _, sub := range subscriptions {
			sub.Unsubscribe()
		}
	}()

	// Client frames are ignored; reading detects the close.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		_, _ = io.Copy(io.Discard, conn)
	}()

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(eventFrame{Type: frameSubscribed}); err != nil {
		return
	}
	for {
		select {
		case <-peerGone:
			return
		case <-a.closing:
			return
		case event := <-events:
			if err := encoder.Encode(eventFrame{Type: string(event.Type), Data: event.Data}); err != nil {
				logger.Debug("write cache event", zap.Error(err))
				return
			}
		}
	}
}
