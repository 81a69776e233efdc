package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"collab-quiz-service/internal/app"
	"collab-quiz-service/internal/auth"
	"collab-quiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	errInvalidPayload  = errors.New("invalid payload")
	errAlreadyInRoom   = errors.New("connection is already bound to a room")
	errUnsupportedType = errors.New("unsupported message type")
)

// WSHandler authenticates inbound connections, binds each to one identity,
// and relays session events bidirectionally. Room mutations always go
// through the service's registry-owned session; the handler only keeps the
// room id per connection.
type WSHandler struct {
	service  *app.Service
	tokens   *auth.TokenManager
	upgrader websocket.Upgrader
	groups   *GroupHub

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewWSHandler(service *app.Service, tokens *auth.TokenManager) *WSHandler {
	return &WSHandler{
		service: service,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		groups: NewGroupHub(),
		conns:  make(map[string]*websocket.Conn),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createRoomPayload struct {
	QuizID   string                  `json:"quizId"`
	RoomID   string                  `json:"roomId"`
	Settings *domain.SessionSettings `json:"settings"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type suggestPayload struct {
	Answer string `json:"answer"`
}

type groupPayload struct {
	GroupID string `json:"groupId"`
	Message string `json:"message"`
}

type roomCreatedPayload struct {
	RoomID string        `json:"roomId"`
	State  app.RoomState `json:"state"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: clientMessage(err)}}
}

// clientMessage maps an error to the short text sent to the client. Anything
// outside the enumerated set, such as a wrapped persistence failure, becomes
// a generic message.
func clientMessage(err error) string {
	for _, known := range []error{
		domain.ErrUnauthorized,
		domain.ErrQuizNotFound,
		domain.ErrRoomNotFound,
		domain.ErrForbidden,
		domain.ErrRoomFull,
		domain.ErrInvalidState,
		domain.ErrDuplicateRoom,
		domain.ErrProfileNotFound,
		domain.ErrNotParticipant,
		errInvalidPayload,
		errAlreadyInRoom,
		errUnsupportedType,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "internal error"
}

// ServeWS upgrades the request after validating its bearer credential and
// runs the connection's event loop. Authentication failures abort before any
// room interaction; room-action errors go back to this connection only.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, domain.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	h.bind(userID, conn)
	defer h.unbind(userID, conn)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Debug().Err(err).Str("user_id", userID).Msg("ws write error")
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	roomID := ""
	var cancelSub func()
	var cancelGroup func()

	defer func() {
		if roomID != "" && h.isBound(userID, conn) {
			// Abrupt disconnects land here too: drop the participant and let
			// the session notify the rest of the room. A connection that was
			// replaced by a newer one for the same identity keeps the
			// participant record intact.
			h.service.LeaveRoom(roomID, userID)
		}
		if cancelSub != nil {
			cancelSub()
		}
		if cancelGroup != nil {
			cancelGroup()
		}
		// send is never closed: the writer and both pumps stop on
		// closeSignals, so a pump holding an in-flight event has no closed
		// channel to hit.
		close(closeSignals)
		<-writerDone
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}

		switch inbound.Type {
		case "create-room":
			var payload createRoomPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuizID == "" {
				send <- errorMessage(errInvalidPayload)
				continue
			}
			if roomID != "" {
				send <- errorMessage(errAlreadyInRoom)
				continue
			}
			session, state, err := h.service.CreateRoom(r.Context(), userID, payload.QuizID, payload.RoomID, payload.Settings)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			roomID = session.RoomID()
			cancelSub = h.pumpEvents(session, send, closeSignals)
			send <- outboundMessage{Type: "room-created", Payload: roomCreatedPayload{RoomID: roomID, State: state}}

		case "join-room":
			var payload joinRoomPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.RoomID == "" {
				send <- errorMessage(errInvalidPayload)
				continue
			}
			if roomID != "" {
				send <- errorMessage(errAlreadyInRoom)
				continue
			}
			session, state, err := h.service.JoinRoom(r.Context(), payload.RoomID, userID)
			if err != nil {
				send <- errorMessage(err)
				continue
			}
			roomID = session.RoomID()
			cancelSub = h.pumpEvents(session, send, closeSignals)
			send <- outboundMessage{Type: "room-joined", Payload: state}

		case "start-quiz":
			if roomID == "" {
				send <- errorMessage(domain.ErrRoomNotFound)
				continue
			}
			if err := h.service.StartQuiz(roomID, userID); err != nil {
				send <- errorMessage(err)
			}

		case "suggest-answer":
			var payload suggestPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Answer == "" {
				send <- errorMessage(errInvalidPayload)
				continue
			}
			if roomID == "" {
				send <- errorMessage(domain.ErrRoomNotFound)
				continue
			}
			if err := h.service.SuggestAnswer(roomID, userID, payload.Answer); err != nil {
				send <- errorMessage(err)
			}

		case "join-group":
			var payload groupPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.GroupID == "" {
				send <- errorMessage(errInvalidPayload)
				continue
			}
			if cancelGroup != nil {
				cancelGroup()
			}
			cancelGroup = h.pumpGroup(payload.GroupID, send, closeSignals)
			send <- outboundMessage{Type: "group-joined", Payload: groupPayload{GroupID: payload.GroupID}}

		case "group-message":
			var payload groupPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.GroupID == "" {
				send <- errorMessage(errInvalidPayload)
				continue
			}
			h.groups.Broadcast(payload.GroupID, GroupMessage{
				GroupID: payload.GroupID,
				From:    userID,
				Message: payload.Message,
			})

		default:
			send <- errorMessage(errUnsupportedType)
		}
	}
}

// pumpEvents forwards session broadcasts to this connection until the
// subscription is cancelled or the connection winds down.
func (h *WSHandler) pumpEvents(session *app.Session, send chan<- outboundMessage, closeSignals <-chan struct{}) func() {
	events, cancel := session.Subscribe()
	go func() {
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: event.Type, Payload: event.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return cancel
}

func (h *WSHandler) pumpGroup(groupID string, send chan<- outboundMessage, closeSignals <-chan struct{}) func() {
	messages, cancel := h.groups.Join(groupID)
	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "group-message", Payload: msg}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()
	return cancel
}

// authenticate resolves the bearer credential to a known identity. The token
// may arrive as a query parameter (browser websockets cannot set headers) or
// an Authorization header.
func (h *WSHandler) authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		if after, ok := strings.CutPrefix(header, "Bearer "); ok {
			token = after
		}
	}
	if token == "" {
		return "", domain.ErrUnauthorized
	}

	userID, err := h.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	if _, err := h.service.ResolveIdentity(r.Context(), userID); err != nil {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

// bind makes conn the identity's active connection. A newer connection for
// the same identity replaces the older one, which gets closed; the session
// participant record is untouched.
func (h *WSHandler) bind(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	previous := h.conns[userID]
	h.conns[userID] = conn
	h.mu.Unlock()

	if previous != nil {
		log.Debug().Str("user_id", userID).Msg("replacing existing connection for identity")
		_ = previous.Close()
	}
}

// isBound reports whether conn is still the identity's active connection.
func (h *WSHandler) isBound(userID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[userID] == conn
}

func (h *WSHandler) unbind(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[userID] == conn {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
}
