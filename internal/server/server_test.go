package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxgate/voxgate/internal/callstore"
	"github.com/voxgate/voxgate/internal/convo"
	"github.com/voxgate/voxgate/internal/draft"
	"github.com/voxgate/voxgate/internal/orchestrator"
	"github.com/voxgate/voxgate/internal/tool"
	"github.com/voxgate/voxgate/internal/tool/bookstore"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/llm/mock"
)

type mockRegistrar struct {
	call *orchestrator.Call
	err  error

	mu       sync.Mutex
	agentIDs []string
}

func (m *mockRegistrar) RegisterCall(_ context.Context, agentID, _ string) (*orchestrator.Call, error) {
	m.mu.Lock()
	m.agentIDs = append(m.agentIDs, agentID)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.call, nil
}

type mockStore struct {
	mu       sync.Mutex
	created  []callstore.CallRecord
	statuses []string
}

func (m *mockStore) Create(_ context.Context, rec *callstore.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *rec)
	return nil
}

func (m *mockStore) Get(context.Context, string) (*callstore.CallRecord, error) {
	return nil, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, callID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, callID+":"+status)
	return nil
}

func (m *mockStore) List(context.Context, string) ([]callstore.CallRecord, error) {
	return nil, nil
}

func newTestServer(t *testing.T, provider llm.Provider, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	reg, err := tool.NewRegistry(bookstore.Tools()...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	registrar := &mockRegistrar{call: &orchestrator.Call{CallID: "call-abc", AgentID: "agent-1"}}
	srv, err := New(":0", "agent-1", "You are a terse bookseller.", provider, reg, registrar, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dialSession(t *testing.T, ts *httptest.Server, callID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/llm-websocket/" + callID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", wsURL, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) draft.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("Read() type = %v, want text", typ)
	}
	var f draft.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return f
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	reg, _ := tool.NewRegistry()
	if _, err := New("", "a", "p", &mock.Provider{}, reg, nil); err == nil {
		t.Error("New() with empty listenAddr expected error")
	}
	if _, err := New(":0", "a", "p", nil, reg, nil); err == nil {
		t.Error("New() with nil provider expected error")
	}
	if _, err := New(":0", "a", "p", &mock.Provider{}, nil, nil); err == nil {
		t.Error("New() with nil tools expected error")
	}
}

func TestTranscriptSession(t *testing.T) {
	provider := &mock.Provider{
		StreamChunks: []llm.Chunk{
			{Delta: llm.Fields{"content": llm.StringValue("Hello")}},
			{Delta: llm.Fields{"content": llm.StringValue(" caller")}},
			{FinishReason: llm.FinishStop},
		},
	}
	store := &mockStore{}
	_, ts := newTestServer(t, provider, WithCallStore(store), WithGreeting("Welcome!"))
	conn := dialSession(t, ts, "call-1")

	greeting := readFrame(t, conn)
	if greeting.Content != "Welcome!" || !greeting.ContentComplete || greeting.ResponseID != 0 {
		t.Fatalf("greeting frame = %+v", greeting)
	}

	sendJSON(t, conn, draft.Request{
		ResponseID:  3,
		Transcript:  []convo.Turn{{Speaker: convo.SpeakerUser, Text: "hi"}},
		Interaction: convo.InteractionNormal,
	})

	want := []draft.Frame{
		{ResponseID: 3, Content: "Hello"},
		{ResponseID: 3, Content: " caller"},
		{ResponseID: 3, Content: "", ContentComplete: true},
	}
	for i, wf := range want {
		got := readFrame(t, conn)
		if got != wf {
			t.Errorf("frame[%d] = %+v, want %+v", i, got, wf)
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statuses) == 2
	})
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.statuses[0] != "call-1:ongoing" || store.statuses[1] != "call-1:ended" {
		t.Errorf("statuses = %v", store.statuses)
	}
}

// TestTranscriptSessionDefaultGreeting checks that a server configured without
// a greeting still opens sessions with the built-in greeting text rather than
// an empty frame.
func TestTranscriptSessionDefaultGreeting(t *testing.T) {
	_, ts := newTestServer(t, &mock.Provider{}, WithGreeting(""))
	conn := dialSession(t, ts, "call-0")

	greeting := readFrame(t, conn)
	if greeting.Content != "Hey there, how can I help you today?" {
		t.Errorf("greeting content = %q", greeting.Content)
	}
	if !greeting.ContentComplete || greeting.ResponseID != 0 {
		t.Errorf("greeting frame = %+v", greeting)
	}
}

func TestTranscriptSessionSerializesCycles(t *testing.T) {
	provider := &mock.Provider{
		StreamChunks: []llm.Chunk{
			{Delta: llm.Fields{"content": llm.StringValue("ok")}},
			{FinishReason: llm.FinishStop},
		},
	}
	_, ts := newTestServer(t, provider)
	conn := dialSession(t, ts, "call-2")
	readFrame(t, conn) // greeting

	for id := 1; id <= 3; id++ {
		sendJSON(t, conn, map[string]any{
			"response_id":      id,
			"transcript":       []map[string]string{{"role": "user", "content": "hi"}},
			"interaction_type": "normal",
		})
	}
	var ids []int
	for range 6 {
		ids = append(ids, readFrame(t, conn).ResponseID)
	}
	want := []int{1, 1, 2, 2, 3, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("frame response IDs = %v, want %v", ids, want)
		}
	}
}

func TestTranscriptSessionRejectsMalformedJSON(t *testing.T) {
	_, ts := newTestServer(t, &mock.Provider{})
	conn := dialSession(t, ts, "call-3")
	readFrame(t, conn) // greeting

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want policy violation", websocket.CloseStatus(err))
	}
}

func TestTranscriptSessionRejectsInvalidShape(t *testing.T) {
	_, ts := newTestServer(t, &mock.Provider{})
	conn := dialSession(t, ts, "call-4")
	readFrame(t, conn) // greeting

	sendJSON(t, conn, map[string]any{
		"response_id":      1,
		"transcript":       []map[string]string{{"role": "narrator", "content": "hi"}},
		"interaction_type": "normal",
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want policy violation", websocket.CloseStatus(err))
	}
}

func TestTranscriptSessionRejectsBinary(t *testing.T) {
	_, ts := newTestServer(t, &mock.Provider{})
	conn := dialSession(t, ts, "call-5")
	readFrame(t, conn) // greeting

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusUnsupportedData {
		t.Errorf("close status = %v, want unsupported data", websocket.CloseStatus(err))
	}
}

func TestVoiceWebhook(t *testing.T) {
	store := &mockStore{}
	_, ts := newTestServer(t, &mock.Provider{}, WithCallStore(store), WithAudioHost("orchestrator.example.com"))

	form := url.Values{"From": {"+4915112345678"}, "To": {"+18005550100"}, "CallSid": {"CA1234"}}
	resp, err := http.PostForm(ts.URL+"/voice-webhook/agent-1", form)
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !strings.Contains(string(body), "wss://orchestrator.example.com/audio-websocket/call-abc") {
		t.Errorf("TwiML = %q, missing stream URL", body)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.created) == 0 {
		t.Fatal("no call record created")
	}
	rec := store.created[0]
	if rec.CallID != "call-abc" || rec.AgentID != "agent-1" || rec.Direction != callstore.DirectionInbound {
		t.Errorf("record = %+v", rec)
	}
	if rec.FromNumber != "+4915112345678" || rec.ProviderSID != "CA1234" {
		t.Errorf("record numbers = %+v", rec)
	}
}

func TestVoiceWebhookUnknownAgent(t *testing.T) {
	_, ts := newTestServer(t, &mock.Provider{})
	resp, err := http.PostForm(ts.URL+"/voice-webhook/other-agent", url.Values{})
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestVoiceWebhookRegistrarFailure(t *testing.T) {
	reg, _ := tool.NewRegistry()
	registrar := &mockRegistrar{err: errors.New("orchestrator down")}
	srv, err := New(":0", "agent-1", "p", &mock.Provider{}, reg, registrar)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.PostForm(ts.URL+"/voice-webhook/agent-1", url.Values{})
	if err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	_, ts := newTestServer(t, &mock.Provider{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Get(%s) status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
