package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"

	"proctored-quiz-engine/internal/app"
	"proctored-quiz-engine/internal/catalog"
	"proctored-quiz-engine/internal/domain"
	"proctored-quiz-engine/internal/infra/memory"
	"proctored-quiz-engine/internal/timer"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	service := app.NewProctorService(app.ServiceConfig{
		Engine:    app.EngineConfig{SecondsPerSubject: 60, Mode: "exam"},
		Retention: time.Minute,
	}, app.ServiceDeps{
		Sessions: memory.NewSessionStore(),
		Catalog:  memory.NewCatalog(catalog.DemoSeed()),
		Gateway:  memory.NewGateway(),
		NewClock: func() timer.Clock { return timer.NewManual() },
		Log:      log,
	})
	server := httptest.NewServer(NewRouter(service, log))
	t.Cleanup(func() {
		server.Close()
		service.Close()
	})
	return server
}

func startSession(t *testing.T, server *httptest.Server, body string) domain.Snapshot {
	t.Helper()
	resp, err := http.Post(server.URL+"/sessions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestWebSocketAssessmentFlow(t *testing.T) {
	server := newTestServer(t)
	snap := startSession(t, server, `{"studentId":"stu-1","courses":"[\"Mathematics\"]","className":"SS1"}`)
	if snap.State != domain.StateAwaitingConsent {
		t.Fatalf("expected awaiting consent, got %s", snap.State)
	}

	u := "ws" + server.URL[len("http"):] + "/sessions/" + snap.SessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current snapshot first.
	readNext(conn, t, "snapshot")

	send(t, conn, "consent", map[string]any{"webcam": true, "screen": true, "audio": true})
	readUntil(t, conn, func(typ string, payload map[string]any) bool {
		return typ == "snapshot" && payload["state"] == string(domain.StateInProgress)
	})

	send(t, conn, "answer", map[string]any{"questionId": "q-math-1", "option": "B"})
	send(t, conn, "answer", map[string]any{"questionId": "q-math-2", "option": "C"})
	send(t, conn, "submitAll", nil)

	payload := readUntil(t, conn, func(typ string, _ map[string]any) bool { return typ == "result" })
	if payload["overallPassed"] != true {
		t.Fatalf("expected a passing result, got %v", payload)
	}
	results := payload["subjectResults"].(map[string]any)
	math := results["sub-math"].(map[string]any)
	if math["percentage"] != float64(100) || math["grade"] != "A" {
		t.Fatalf("unexpected math result: %v", math)
	}
}

func TestWebSocketReportsErrors(t *testing.T) {
	server := newTestServer(t)
	snap := startSession(t, server, `{"studentId":"stu-1","courses":["Mathematics"]}`)

	u := "ws" + server.URL[len("http"):] + "/sessions/" + snap.SessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "snapshot")

	// answering before consent is a state error
	send(t, conn, "answer", map[string]any{"questionId": "q-math-1", "option": "B"})
	_, payload := readNext(conn, t, "error")
	if payload["category"] != string(domain.CategoryState) {
		t.Fatalf("expected state error, got %v", payload)
	}

	send(t, conn, "consent", map[string]any{"webcam": true})
	_, payload = readNext(conn, t, "error")
	if payload["category"] != string(domain.CategoryConsent) {
		t.Fatalf("expected consent error, got %v", payload)
	}

	send(t, conn, "dance", nil)
	_, payload = readNext(conn, t, "error")
	if payload["category"] != string(domain.CategoryValidation) {
		t.Fatalf("expected validation error, got %v", payload)
	}
}

func TestRESTErrorStatuses(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/sessions", "application/json", bytes.NewBufferString(`{"courses":["Mathematics"]}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing student: expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/sessions", "application/json", bytes.NewBufferString(`{"studentId":"s","courses":"Basket Weaving"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unknown course: expected 422, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/sessions/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}

	snap := startSession(t, server, `{"studentId":"s","courses":"Mathematics"}`)
	resp, err = http.Get(server.URL + "/sessions/" + snap.SessionID + "/result")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("result before submission: expected 409, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/sessions/"+snap.SessionID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel: expected 204, got %d", resp.StatusCode)
	}
}

func TestRESTConsentStartsAssessment(t *testing.T) {
	server := newTestServer(t)
	snap := startSession(t, server, `{"studentId":"s","courses":"Mathematics, English","className":"SS1"}`)

	resp, err := http.Post(server.URL+"/sessions/"+snap.SessionID+"/consent", "application/json",
		bytes.NewBufferString(`{"webcam":true,"screen":true}`))
	if err != nil {
		t.Fatalf("consent: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var after domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if after.State != domain.StateInProgress || len(after.Subjects) != 2 {
		t.Fatalf("unexpected snapshot: %+v", after)
	}
	if !after.DegradedCoverage {
		t.Fatalf("missing microphone should degrade coverage")
	}
	if after.Question == nil || after.Question.ID != "q-math-1" {
		t.Fatalf("expected first math question, got %+v", after.Question)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "payload": payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(string, map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "error" {
			t.Fatalf("unexpected error frame: %v", payload)
		}
		if match(typ, payload) {
			return payload
		}
	}
	t.Fatalf("expected frame never arrived")
	return nil
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
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
