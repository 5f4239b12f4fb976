package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/app"
	"quiz-analytics/internal/domain"
	"quiz-analytics/internal/infra/memory"
)

var fixedNow = time.Date(2024, 3, 22, 8, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, store *memory.Store) (*httptest.Server, *app.AnalyticsService) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := analytics.NewEngine(analytics.DefaultOptions())
	builder := app.NewReportBuilderWithClock(store, engine, func() time.Time { return fixedNow })
	service := app.NewAnalyticsService(app.Deps{
		Engine:  engine,
		Builder: builder,
		Reports: memory.NewReportRepository(builder, time.Minute),
		Writer:  store,
		Logger:  logger,
		Clock:   func() time.Time { return fixedNow },
	})

	api := NewAPI(service, logger)
	server := httptest.NewServer(api.Routes(NewWSHandler(service, logger)))
	t.Cleanup(server.Close)
	return server, service
}

func TestWebSocketReportFlow(t *testing.T) {
	store := memory.NewStore()
	store.PutStudent(domain.Student{ID: "a", DisplayName: "Ann", Department: "CS", Section: "A"})
	store.PutQuiz(domain.Quiz{Code: "Q1", Subject: "Math"})
	server, service := newTestServer(t, store)

	u := "ws" + server.URL[len("http"):] + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the current report first.
	msgType, payload := readNext(conn, t, "report")
	if payload["overview"] == nil {
		t.Fatalf("expected report payload, got %s %v", msgType, payload)
	}

	// A recorded submission refreshes the report (no notifier configured).
	score := 75.0
	if _, err := service.RecordSubmission(context.Background(), domain.Submission{StudentID: "a", QuizCode: "Q1", Score: &score}); err != nil {
		t.Fatalf("record: %v", err)
	}
	_, payload = readNext(conn, t, "report")
	overview := payload["overview"].(map[string]any)
	if overview["totalSubmissions"].(float64) != 1 {
		t.Fatalf("expected refreshed report, got %v", overview)
	}

	if err := conn.WriteJSON(map[string]any{
		"type":    "leaderboard",
		"payload": map[string]any{"scope": "section", "department": "CS", "section": "A"},
	}); err != nil {
		t.Fatalf("write leaderboard request: %v", err)
	}
	var lb struct {
		Type    string                    `json:"type"`
		Payload []domain.LeaderboardEntry `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&lb); err != nil {
		t.Fatalf("read leaderboard: %v", err)
	}
	if lb.Type != "leaderboard" || len(lb.Payload) != 1 || lb.Payload[0].AverageScore != 75 || lb.Payload[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if typ, _ := readNext(conn, t, ""); typ != "error" {
		t.Fatalf("expected error for unsupported type, got %s", typ)
	}
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

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, memory.NewStore())
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, body)
	}
}

func TestEnqueueGivesUpOnceWriterExits(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})
	pong := outboundMessage[any]{Type: "pong", Payload: messagePayload{Message: "ok"}}

	if !enqueue(send, writerDone, pong) {
		t.Fatalf("expected message to be buffered")
	}

	// buffer is full and nothing drains it
	close(writerDone)
	result := make(chan bool, 1)
	go func() { result <- enqueue(send, writerDone, pong) }()

	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected enqueue to fail after the writer exited")
		}
	case <-time.After(time.Second):
		t.Fatalf("enqueue blocked on a full buffer with no writer")
	}
}
