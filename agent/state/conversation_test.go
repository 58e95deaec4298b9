package state

import (
	"errors"
	"testing"
	"time"
)

func TestAppendRejectsSystemMessages(t *testing.T) {
	t.Parallel()

	st := NewConversationState("u", "s", time.Now())
	err := st.Append(SystemMessage("prompt", time.Now()))
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("Append(system) error = %v, want ErrInvalidMessage", err)
	}
}

func TestAppendRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	st := NewConversationState("u", "s", time.Now())
	msg := UserMessage("hi", time.Now())
	if err := st.Append(msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := st.Append(msg); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("Append(dup) error = %v, want ErrDuplicateMessage", err)
	}
}

func TestToolResultsMustAnswerOutstandingCalls(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("u", "s", now)
	if err := st.Append(UserMessage("size the market", now)); err != nil {
		t.Fatal(err)
	}

	if err := st.Append(ToolMessage("c1", "web_search", "x", now)); !errors.Is(err, ErrUnexpectedToolCall) {
		t.Fatalf("orphan tool result error = %v, want ErrUnexpectedToolCall", err)
	}

	calls := []ToolCall{
		{ID: "c1", Name: "web_search", Arguments: `{"query":"a"}`},
		{ID: "c2", Name: "web_search", Arguments: `{"query":"b"}`},
	}
	if err := st.Append(AssistantMessage("", calls, now)); err != nil {
		t.Fatal(err)
	}
	if got := st.OutstandingToolCalls(); len(got) != 2 {
		t.Fatalf("OutstandingToolCalls() = %d, want 2", len(got))
	}

	if err := st.Append(ToolMessage("c1", "web_search", "r1", now)); err != nil {
		t.Fatalf("Append(c1) error = %v", err)
	}
	if err := st.Append(ToolMessage("c1", "web_search", "again", now)); !errors.Is(err, ErrUnexpectedToolCall) {
		t.Fatalf("second c1 result error = %v, want ErrUnexpectedToolCall", err)
	}
	if got := st.OutstandingToolCalls(); len(got) != 1 || got[0].ID != "c2" {
		t.Fatalf("OutstandingToolCalls() = %+v, want [c2]", got)
	}
	if err := st.Append(ToolMessage("c2", "web_search", "r2", now)); err != nil {
		t.Fatalf("Append(c2) error = %v", err)
	}
	if got := st.OutstandingToolCalls(); len(got) != 0 {
		t.Fatalf("OutstandingToolCalls() = %+v, want none", got)
	}
}

func TestWithSystemPrependsExactlyOne(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("u", "s", now)
	// a legacy checkpoint may carry a system message
	st.Messages = append(st.Messages, SystemMessage("old", now))
	if err := st.Append(UserMessage("hi", now)); err != nil {
		t.Fatal(err)
	}

	out := st.WithSystem(SystemMessage("new", now))
	if len(out) != 2 {
		t.Fatalf("WithSystem() len = %d, want 2", len(out))
	}
	if out[0].Role != RoleSystem || out[0].Content != "new" {
		t.Fatalf("WithSystem()[0] = %+v", out[0])
	}
	if out[1].Role != RoleUser {
		t.Fatalf("WithSystem()[1] = %+v", out[1])
	}
}

func TestWindowKeepsLastK(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("u", "s", now)
	for i := 0; i < 9; i++ {
		if err := st.Append(UserMessage(string(rune('a'+i)), now)); err != nil {
			t.Fatal(err)
		}
	}

	w := st.Window(6)
	if len(w) != 6 {
		t.Fatalf("Window(6) len = %d", len(w))
	}
	if w[0].Content != "d" || w[5].Content != "i" {
		t.Fatalf("Window(6) = %q..%q, want d..i", w[0].Content, w[5].Content)
	}
	if got := st.Window(0); len(got) != 9 {
		t.Fatalf("Window(0) len = %d, want 9", len(got))
	}
	if got := st.Window(20); len(got) != 9 {
		t.Fatalf("Window(20) len = %d, want 9", len(got))
	}
}

func TestApplyPatch(t *testing.T) {
	t.Parallel()

	st := NewConversationState("u", "s", time.Now())
	doc, url := "doc-1", "https://cdn.example/r.pdf"
	st.Apply(Patch{PendingDocumentID: &doc})
	st.Apply(Patch{PendingReportURL: &url})

	if st.PendingDocumentID != doc || st.PendingReportURL != url {
		t.Fatalf("Apply() = %q %q", st.PendingDocumentID, st.PendingReportURL)
	}
}

func TestTrimToDropsPersistenceMarks(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("u", "s", now)
	var ids []string
	for _, text := range []string{"a", "b", "c"} {
		m := UserMessage(text, now)
		ids = append(ids, m.ID)
		if err := st.Append(m); err != nil {
			t.Fatal(err)
		}
		st.MarkPersisted(m.ID)
	}

	st.TrimTo(1)
	if len(st.Messages) != 1 || st.Messages[0].Content != "c" {
		t.Fatalf("TrimTo(1) = %+v", st.Messages)
	}
	if st.IsPersisted(ids[0]) || !st.IsPersisted(ids[2]) {
		t.Fatalf("Persisted = %v", st.Persisted)
	}
}

func TestLatestUser(t *testing.T) {
	t.Parallel()

	now := time.Now()
	st := NewConversationState("u", "s", now)
	if _, ok := st.LatestUser(); ok {
		t.Fatal("LatestUser() on empty state returned ok")
	}
	_ = st.Append(UserMessage("first", now), AssistantMessage("reply", nil, now), UserMessage("second", now))

	got, ok := st.LatestUser()
	if !ok || got.Content != "second" {
		t.Fatalf("LatestUser() = %+v %v", got, ok)
	}
}
