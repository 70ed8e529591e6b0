package http

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"quiz-client/internal/app"
)

// WSHandler streams session events to the browser and feeds its activity
// back into the inactivity timer.
type WSHandler struct {
	session  *app.SessionManager
	events   *app.Broadcaster
	upgrader websocket.Upgrader
}

func NewWSHandler(session *app.SessionManager, events *app.Broadcaster) *WSHandler {
	return &WSHandler{
		session: session,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     loopbackOrigin,
		},
	}
}

// loopbackOrigin admits non-browser clients (no Origin) and pages served
// from this machine only.
func loopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type activityPayload struct {
	Event string `json:"event"`
}

type activityResult struct {
	Event string `json:"event"`
	Reset bool   `json:"reset"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request. The first message is the session state;
// after that the client receives every notification and navigation.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.events.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(ev.Type), Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: h.session.Snapshot()}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "activity":
			var payload activityPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Event == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid activity payload"}}
				continue
			}
			reset := h.session.Touch(payload.Event)
			send <- outboundMessage[any]{Type: "activity", Payload: activityResult{Event: payload.Event, Reset: reset}}
		case "session":
			send <- outboundMessage[any]{Type: "session", Payload: h.session.Snapshot()}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
