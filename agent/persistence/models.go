package persistence

import (
	"time"

	"github.com/uptrace/bun"
)

type MessageRow struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        string    `bun:"id,pk"`
	ChatID    string    `bun:"chat_id,notnull"`
	Content   string    `bun:"content,notnull"`
	Sender    string    `bun:"sender,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type ImageRow struct {
	bun.BaseModel `bun:"table:images,alias:i"`

	ID              string    `bun:"id,pk"`
	ChatID          string    `bun:"chat_id,notnull"`
	UserID          string    `bun:"user_id,notnull"`
	Description     string    `bun:"description,notnull"`
	StorageLocation string    `bun:"storage_location,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

type DocumentRow struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID          string    `bun:"id,pk"`
	ChatID      string    `bun:"chat_id,notnull"`
	UserID      string    `bun:"user_id,notnull"`
	Name        string    `bun:"name,notnull"`
	ReportData  string    `bun:"report_data,notnull"`
	ArtifactURL string    `bun:"artifact_url,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
}
