package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tanpawarit/deep-market-agent/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	"github.com/tanpawarit/deep-market-agent/api"
)

type fakeRunner struct {
	mu       sync.Mutex
	sessions []orchestrator.SessionContext
	prompts  []string

	events  []orchestrator.Event
	runErr  error
	reply   orchestrator.Reply
	sendErr error
}

func (f *fakeRunner) record(sc orchestrator.SessionContext, prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sc)
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeRunner) RunTurn(_ context.Context, sc orchestrator.SessionContext, prompt string) (<-chan orchestrator.Event, error) {
	f.record(sc, prompt)
	if f.runErr != nil {
		return nil, f.runErr
	}
	ch := make(chan orchestrator.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeRunner) HandleMessage(_ context.Context, sc orchestrator.SessionContext, prompt string) (orchestrator.Reply, error) {
	f.record(sc, prompt)
	if f.sendErr != nil {
		return orchestrator.Reply{}, f.sendErr
	}
	return f.reply, nil
}

func newTestServer(t *testing.T, runner *fakeRunner) http.Handler {
	t.Helper()
	srv, err := api.NewServer(api.Config{Addr: ":0"}, runner)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func readFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		raw, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			t.Fatalf("unexpected sse line %q", line)
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(raw), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func frameTypes(frames []map[string]any) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, fmt.Sprint(f["type"]))
	}
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeRunner{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestStreamEmitsMetadataChunksDocumentDone(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{events: []orchestrator.Event{
		{Type: orchestrator.EventTextDelta, Text: "Hel"},
		{Type: orchestrator.EventTextDelta, Text: "lo"},
		{Type: orchestrator.EventFinalReference, Reference: &contractx.DocumentRef{DocumentID: "doc-1", ArtifactURL: "https://r.example/doc-1"}},
	}}
	h := newTestServer(t, runner)

	w := post(t, h, "/v1/agent/stream", `{"query":"coffee market in Bangkok","chat_id":"chat-1","user_id":"u-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if got := w.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("expected X-Accel-Buffering no, got %q", got)
	}

	frames := readFrames(t, w.Body.String())
	got := strings.Join(frameTypes(frames), ",")
	if got != "metadata,chunk,chunk,document,done" {
		t.Fatalf("unexpected frame order %s", got)
	}
	if frames[0]["chat_id"] != "chat-1" || frames[0]["user_id"] != "u-1" {
		t.Fatalf("unexpected metadata %v", frames[0])
	}
	if frames[1]["content"] != "Hel" || frames[2]["content"] != "lo" {
		t.Fatalf("unexpected chunks %v %v", frames[1], frames[2])
	}
	if frames[3]["document_id"] != "doc-1" || frames[3]["url"] != "https://r.example/doc-1" {
		t.Fatalf("unexpected document frame %v", frames[3])
	}
	if runner.sessions[0].ActorID != "u-1" || runner.sessions[0].SessionID != "chat-1" {
		t.Fatalf("unexpected session %+v", runner.sessions[0])
	}
}

func TestStreamDefaultsUserAndChat(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	h := newTestServer(t, runner)

	w := post(t, h, "/v1/agent/stream", `{"query":"hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	sc := runner.sessions[0]
	if sc.ActorID != "default_user" {
		t.Fatalf("expected default user, got %q", sc.ActorID)
	}
	if sc.SessionID == "" {
		t.Fatal("expected a generated chat id")
	}
	frames := readFrames(t, w.Body.String())
	if frames[0]["chat_id"] != sc.SessionID {
		t.Fatalf("metadata chat id %v does not match session %q", frames[0]["chat_id"], sc.SessionID)
	}
}

func TestStreamErrorEndsWithoutDone(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{events: []orchestrator.Event{
		{Type: orchestrator.EventTextDelta, Text: "partial"},
		{Type: orchestrator.EventError, Failure: &orchestrator.Failure{Code: orchestrator.CodeRecursionExceeded, Message: "too many steps"}},
	}}
	h := newTestServer(t, runner)

	w := post(t, h, "/v1/agent/stream", `{"query":"q","chat_id":"c"}`)
	frames := readFrames(t, w.Body.String())
	if got := strings.Join(frameTypes(frames), ","); got != "metadata,chunk,error" {
		t.Fatalf("unexpected frame order %s", got)
	}
	if frames[2]["code"] != orchestrator.CodeRecursionExceeded || frames[2]["message"] != "too many steps" {
		t.Fatalf("unexpected error frame %v", frames[2])
	}
}

func TestStreamRejectsMissingQuery(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	h := newTestServer(t, runner)

	w := post(t, h, "/v1/agent/stream", `{"query":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(runner.sessions) != 0 {
		t.Fatal("runner must not be called for an invalid request")
	}
}

func TestStreamBusySessionIsConflict(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeRunner{runErr: contractx.ErrSessionBusy})

	w := post(t, h, "/v1/agent/stream", `{"query":"q","chat_id":"c"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["code"] != orchestrator.CodeSessionBusy {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStreamRejectsGet(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeRunner{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/agent/stream", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestMessageReturnsReplyAndDocument(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{reply: orchestrator.Reply{
		Message:   "Here is your report.",
		Reference: &contractx.DocumentRef{DocumentID: "doc-9", ArtifactURL: "https://r.example/doc-9"},
	}}
	h := newTestServer(t, runner)

	w := post(t, h, "/v1/agent/message", `{"query":"make a report","chat_id":"c-2","user_id":"u-2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}

	var body struct {
		Success     bool   `json:"success"`
		Message     string `json:"message"`
		ChatID      string `json:"chat_id"`
		UserID      string `json:"user_id"`
		DocumentURL string `json:"document_url"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Success || body.Message != "Here is your report." || body.ChatID != "c-2" || body.UserID != "u-2" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.DocumentURL != "https://r.example/doc-9" {
		t.Fatalf("unexpected document url %q", body.DocumentURL)
	}
}

func TestMessageMapsFailureToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"recursion", &orchestrator.Failure{Code: orchestrator.CodeRecursionExceeded, Message: "m"}, http.StatusUnprocessableEntity},
		{"timeout", &orchestrator.Failure{Code: orchestrator.CodeUpstreamTimeout, Message: "m"}, http.StatusGatewayTimeout},
		{"model", &orchestrator.Failure{Code: orchestrator.CodeModelError, Message: "m"}, http.StatusBadGateway},
		{"busy", contractx.ErrSessionBusy, http.StatusConflict},
		{"internal", &orchestrator.Failure{Code: orchestrator.CodeInternal, Message: "m"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newTestServer(t, &fakeRunner{sendErr: tc.err})
			w := post(t, h, "/v1/agent/message", `{"query":"q","chat_id":"c"}`)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, &fakeRunner{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/agent/stream", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected allow origin %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}
