package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := Open(context.Background(), Config{DSN: "file:" + filepath.Join(t.TempDir(), "sink.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendMessageGeneratesIdentity(t *testing.T) {
	t.Parallel()

	s := newTestSink(t)
	ctx := context.Background()
	fixed := time.Date(2025, 10, 12, 8, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))
	s.now = func() time.Time { return fixed }

	first, err := s.AppendMessage(ctx, "chat-1", contractx.MessageInput{Content: "hi", Sender: contractx.SenderUser})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	second, err := s.AppendMessage(ctx, "chat-1", contractx.MessageInput{Content: "hello", Sender: contractx.SenderAssistant})
	if err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("ids = %q %q, want distinct non-empty", first.ID, second.ID)
	}
	if first.CreatedAt.Location() != time.UTC {
		t.Fatalf("CreatedAt location = %v, want UTC", first.CreatedAt.Location())
	}

	rows, err := s.ListMessages(ctx, "chat-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListMessages() len = %d, want 2", len(rows))
	}
}

func TestAppendMessageRejectsUnknownSender(t *testing.T) {
	t.Parallel()

	s := newTestSink(t)
	_, err := s.AppendMessage(context.Background(), "chat-1", contractx.MessageInput{Content: "x", Sender: "TOOL"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("AppendMessage() error = %v, want ErrValidation", err)
	}
}

func TestAppendImageAndDocument(t *testing.T) {
	t.Parallel()

	s := newTestSink(t)
	ctx := context.Background()

	img, err := s.AppendImageRecord(ctx, contractx.ImageInput{
		ChatID:          "chat-1",
		UserID:          "u1",
		Description:     "solar farm at dawn",
		StorageLocation: "https://img.example/a.png",
	})
	if err != nil {
		t.Fatalf("AppendImageRecord() error = %v", err)
	}
	stored, err := s.GetImage(ctx, img.ID)
	if err != nil {
		t.Fatalf("GetImage() error = %v", err)
	}
	if stored.StorageLocation != "https://img.example/a.png" {
		t.Fatalf("GetImage() = %+v", stored)
	}

	data, _ := json.Marshal(map[string]any{"summary_title": "EV"})
	doc, err := s.AppendDocumentRecord(ctx, contractx.DocumentInput{
		ChatID:      "chat-1",
		UserID:      "u1",
		Name:        "report",
		ReportData:  data,
		ArtifactURL: "https://cdn.example/r.pdf",
	})
	if err != nil {
		t.Fatalf("AppendDocumentRecord() error = %v", err)
	}
	storedDoc, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if storedDoc.ReportData != string(data) || storedDoc.ArtifactURL != "https://cdn.example/r.pdf" {
		t.Fatalf("GetDocument() = %+v", storedDoc)
	}
}

func TestAppendDocumentRequiresArtifact(t *testing.T) {
	t.Parallel()

	s := newTestSink(t)
	_, err := s.AppendDocumentRecord(context.Background(), contractx.DocumentInput{ChatID: "c"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("AppendDocumentRecord() error = %v, want ErrValidation", err)
	}
}

func TestDSNSelection(t *testing.T) {
	t.Parallel()

	if !isPostgres("postgres://u:p@localhost:5432/db") || isPostgres("file:data/x.db") {
		t.Fatal("isPostgres() misclassified dsn")
	}
	if got := sqlitePath("sqlite://data/x.db"); got != "data/x.db" {
		t.Fatalf("sqlitePath() = %q", got)
	}
}
