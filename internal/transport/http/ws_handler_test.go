package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"collab-quiz-service/internal/app"
	"collab-quiz-service/internal/auth"
	"collab-quiz-service/internal/domain"
	"collab-quiz-service/internal/infra/memory"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

func newGatewayFixture(t *testing.T) (*httptest.Server, *auth.TokenManager, *app.Service) {
	t.Helper()
	records := memory.NewRecordStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	profiles := memory.NewProfileStore(map[string]domain.Profile{
		"u1": {ID: "u1", DisplayName: "Alice"},
		"u2": {ID: "u2", DisplayName: "Bob"},
	})
	// A fake clock keeps round timers from firing mid-test.
	service := app.NewService(quizzes, records, profiles, nil, clockwork.NewFakeClock(), app.Config{})
	tokens := auth.NewTokenManager("test-secret", time.Minute)

	handler := NewWSHandler(service, tokens)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, tokens, service
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func issue(t *testing.T, tokens *auth.TokenManager, userID string) string {
	t.Helper()
	token, err := tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (payload %v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func TestServeWSRejectsBadCredentials(t *testing.T) {
	server, tokens, _ := newGatewayFixture(t)

	cases := map[string]string{
		"missing token":    "",
		"garbage token":    "not-a-jwt",
		"unknown identity": issue(t, tokens, "stranger"),
	}
	for name, token := range cases {
		u := "ws" + server.URL[len("http"):] + "/ws"
		if token != "" {
			u += "?token=" + token
		}
		_, resp, err := websocket.DefaultDialer.Dial(u, nil)
		if err == nil {
			t.Fatalf("%s: expected handshake failure", name)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %v", name, resp)
		}
	}
}

func TestWebSocketRoomLifecycle(t *testing.T) {
	server, tokens, _ := newGatewayFixture(t)

	host := dialWS(t, server, issue(t, tokens, "u1"))
	guest := dialWS(t, server, issue(t, tokens, "u2"))

	// Host creates the room and gets its id back.
	writeJSON(t, host, map[string]any{
		"type":    "create-room",
		"payload": map[string]any{"quizId": "quiz-1"},
	})
	_, created := readNext(host, t, "room-created")
	roomID, _ := created["roomId"].(string)
	if roomID == "" {
		t.Fatalf("expected room id in room-created payload, got %v", created)
	}

	// Guest joins; host is told about the new player.
	writeJSON(t, guest, map[string]any{
		"type":    "join-room",
		"payload": map[string]any{"roomId": roomID},
	})
	readNext(guest, t, "room-joined")
	readNext(host, t, "player-joined")

	// Only the host may start; the error goes back to the offender only.
	writeJSON(t, guest, map[string]any{"type": "start-quiz"})
	readNext(guest, t, "error")

	writeJSON(t, host, map[string]any{"type": "start-quiz"})
	_, question := readNext(host, t, "new-question")
	if question["question"] != "What is 2 + 2?" {
		t.Fatalf("unexpected first question: %v", question)
	}
	readNext(guest, t, "new-question")

	// First suggestion announces a new entry; a matching second one merges
	// into it as a vote.
	writeJSON(t, guest, map[string]any{
		"type":    "suggest-answer",
		"payload": map[string]any{"answer": "4"},
	})
	readNext(guest, t, "new-suggestion")
	readNext(host, t, "new-suggestion")

	writeJSON(t, host, map[string]any{
		"type":    "suggest-answer",
		"payload": map[string]any{"answer": "4"},
	})
	_, vote := readNext(host, t, "vote-updated")
	if votes, _ := vote["votes"].(float64); votes != 2 {
		t.Fatalf("expected 2 votes, got %v", vote)
	}
	readNext(guest, t, "vote-updated")
}

func TestWebSocketRejectsSecondRoomBinding(t *testing.T) {
	server, tokens, _ := newGatewayFixture(t)

	host := dialWS(t, server, issue(t, tokens, "u1"))
	writeJSON(t, host, map[string]any{
		"type":    "create-room",
		"payload": map[string]any{"quizId": "quiz-1"},
	})
	readNext(host, t, "room-created")

	writeJSON(t, host, map[string]any{
		"type":    "create-room",
		"payload": map[string]any{"quizId": "quiz-1"},
	})
	_, payload := readNext(host, t, "error")
	if payload["message"] != errAlreadyInRoom.Error() {
		t.Fatalf("expected already-in-room error, got %v", payload)
	}
}

func TestWebSocketGroupRelay(t *testing.T) {
	server, tokens, _ := newGatewayFixture(t)

	alice := dialWS(t, server, issue(t, tokens, "u1"))
	bob := dialWS(t, server, issue(t, tokens, "u2"))

	for _, conn := range []*websocket.Conn{alice, bob} {
		writeJSON(t, conn, map[string]any{
			"type":    "join-group",
			"payload": map[string]any{"groupId": "study-1"},
		})
		readNext(conn, t, "group-joined")
	}

	writeJSON(t, alice, map[string]any{
		"type":    "group-message",
		"payload": map[string]any{"groupId": "study-1", "message": "hello"},
	})

	_, payload := readNext(bob, t, "group-message")
	if payload["from"] != "u1" || payload["message"] != "hello" {
		t.Fatalf("unexpected group message: %v", payload)
	}
}

// A replacement connection for the same identity takes over delivery; the
// session participant record must survive so the player is not ejected from
// a running game.
func TestReconnectKeepsParticipantMidGame(t *testing.T) {
	server, tokens, service := newGatewayFixture(t)

	host := dialWS(t, server, issue(t, tokens, "u1"))
	guestToken := issue(t, tokens, "u2")
	guest := dialWS(t, server, guestToken)

	writeJSON(t, host, map[string]any{
		"type":    "create-room",
		"payload": map[string]any{"quizId": "quiz-1"},
	})
	_, created := readNext(host, t, "room-created")
	roomID, _ := created["roomId"].(string)

	writeJSON(t, guest, map[string]any{
		"type":    "join-room",
		"payload": map[string]any{"roomId": roomID},
	})
	readNext(guest, t, "room-joined")
	readNext(host, t, "player-joined")

	writeJSON(t, host, map[string]any{"type": "start-quiz"})
	readNext(host, t, "new-question")
	readNext(guest, t, "new-question")

	// The new connection closes the old one server-side.
	dialWS(t, server, guestToken)
	_ = guest.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := guest.ReadMessage(); err != nil {
			break
		}
	}

	// The old handler's teardown runs asynchronously; the participant must
	// stay in the session throughout.
	session, ok := service.GetRoom(roomID)
	if !ok {
		t.Fatalf("room disappeared")
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if !hasPlayer(session.Players(), "u2") {
			t.Fatalf("replacement connection removed the participant from the session")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// No player-left reaches the room either.
	_ = host.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := host.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "player-left" {
			t.Fatalf("replacement connection must not broadcast player-left")
		}
	}
}

// A disconnect racing room broadcasts must tear the connection down without
// taking the process with it; the surviving connection keeps working.
func TestDisconnectDuringBroadcastBurst(t *testing.T) {
	server, tokens, _ := newGatewayFixture(t)

	host := dialWS(t, server, issue(t, tokens, "u1"))
	guest := dialWS(t, server, issue(t, tokens, "u2"))

	writeJSON(t, host, map[string]any{
		"type":    "create-room",
		"payload": map[string]any{"quizId": "quiz-1"},
	})
	_, created := readNext(host, t, "room-created")
	roomID, _ := created["roomId"].(string)

	writeJSON(t, guest, map[string]any{
		"type":    "join-room",
		"payload": map[string]any{"roomId": roomID},
	})
	readNext(guest, t, "room-joined")
	readNext(host, t, "player-joined")

	writeJSON(t, host, map[string]any{"type": "start-quiz"})
	readNext(host, t, "new-question")

	// Flood the room with broadcasts, then drop the guest while its event
	// pump still has traffic in flight. Teardown adds its own player-left
	// broadcast on top.
	for i := 0; i < 10; i++ {
		writeJSON(t, host, map[string]any{
			"type":    "suggest-answer",
			"payload": map[string]any{"answer": fmt.Sprintf("guess-%d", i)},
		})
	}
	_ = guest.Close()

	if payload := readUntil(host, t, "player-left"); payload["playerId"] != "u2" {
		t.Fatalf("expected u2 to leave, got %v", payload)
	}

	// The gateway is still alive and serving this room.
	writeJSON(t, host, map[string]any{
		"type":    "suggest-answer",
		"payload": map[string]any{"answer": "4"},
	})
	readUntil(host, t, "new-suggestion")
}

func TestClientErrorMessages(t *testing.T) {
	wrapped := fmt.Errorf("persist session skeleton: %w", errors.New("connection refused"))
	if got := clientMessage(wrapped); got != "internal error" {
		t.Fatalf("wrapped internal error must map to a generic message, got %q", got)
	}
	if got := clientMessage(fmt.Errorf("look up session record: %w", domain.ErrRoomFull)); got != domain.ErrRoomFull.Error() {
		t.Fatalf("wrapped sentinel must keep its message, got %q", got)
	}
	if got := clientMessage(domain.ErrForbidden); got != domain.ErrForbidden.Error() {
		t.Fatalf("sentinel must pass through, got %q", got)
	}
}

func hasPlayer(players []domain.Participant, userID string) bool {
	for _, p := range players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 50; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == want {
			return payload
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write json: %v", err)
	}
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Basics",
			Questions: []domain.Question{
				{
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectAnswer: "4",
				},
				{
					Text:          "Capital of France?",
					Options:       []string{"Paris", "Lyon", "Nice"},
					CorrectAnswer: "Paris",
				},
			},
		},
	}
}
