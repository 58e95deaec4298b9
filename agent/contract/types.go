package contract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Stage selects the model settings used for one kind of model call.
type Stage string

const (
	StageChat       Stage = "chat"
	StageExtract    Stage = "extract"
	StageImageQuery Stage = "image_query"
	StageReport     Stage = "report"
)

// Namespace scopes Memory Store records to an actor and optionally a session.
type Namespace struct {
	ActorID   string `json:"actor_id"`
	SessionID string `json:"session_id,omitempty"`
}

func (n Namespace) String() string {
	actor := strings.TrimSpace(n.ActorID)
	session := strings.TrimSpace(n.SessionID)
	if session == "" {
		return fmt.Sprintf("/users/%s", actor)
	}
	return fmt.Sprintf("/users/%s/sessions/%s", actor, session)
}

// ActorScope drops the session so a lookup spans every session of the actor.
func (n Namespace) ActorScope() Namespace {
	return Namespace{ActorID: n.ActorID}
}

type MemoryHit struct {
	Namespace string    `json:"namespace"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Rank      float64   `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is one conversational message recorded in the memory event log.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Sender string

const (
	SenderUser      Sender = "USER"
	SenderAssistant Sender = "ASSISTANT"
)

type MessageInput struct {
	Content string `json:"content"`
	Sender  Sender `json:"sender"`
}

type ImageInput struct {
	ChatID          string `json:"chat_id"`
	UserID          string `json:"user_id"`
	Description     string `json:"description"`
	StorageLocation string `json:"storage_location"`
}

type DocumentInput struct {
	ChatID      string          `json:"chat_id"`
	UserID      string          `json:"user_id"`
	Name        string          `json:"name"`
	ReportData  json.RawMessage `json:"report_data"`
	ArtifactURL string          `json:"artifact_url"`
}

// StoredRecord is what the Persistence Sink assigns to every appended record.
type StoredRecord struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// GeneratedImage is an image that has already been persisted and may be cited by id.
type GeneratedImage struct {
	ImageID         string    `json:"image_id"`
	ChatID          string    `json:"chat_id"`
	UserID          string    `json:"user_id"`
	Description     string    `json:"description"`
	StorageLocation string    `json:"storage_location"`
	CreatedAt       time.Time `json:"created_at"`
}

// DocumentRef points at a rendered report.
type DocumentRef struct {
	DocumentID  string `json:"document_id"`
	ArtifactURL string `json:"artifact_url"`
}

// ReportRequest asks for a report built from a conversation.
type ReportRequest struct {
	Messages []Turn `json:"messages"`
	Query    string `json:"query"`
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
}
