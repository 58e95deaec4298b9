package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" default:"file:data/deepmarket.db"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"10"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Sink writes chat messages, generated images and report documents.
// Every append generates the record id and a UTC timestamp.
type Sink struct {
	db  *bun.DB
	now func() time.Time
}

var _ contractx.PersistenceSink = (*Sink)(nil)

// Open connects with pgdriver for postgres:// DSNs and with SQLite otherwise.
func Open(ctx context.Context, cfg Config) (*Sink, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("persistence: dsn is required")
	}

	var db *bun.DB
	if isPostgres(dsn) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(dsn),
			pgdriver.WithTimeout(cfg.Timeout),
		))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	} else {
		path := sqlitePath(dsn)
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return nil, fmt.Errorf("persistence: create data dir: %w", err)
			}
		}
		sqldb, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("persistence: open sqlite: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	s := &Sink{db: db, now: time.Now}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func sqlitePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "file:")
	return dsn
}

func (s *Sink) Close() error {
	return s.db.Close()
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	for _, model := range []any{(*MessageRow)(nil), (*ImageRow)(nil), (*DocumentRow)(nil)} {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("persistence: create table: %w", err)
		}
	}
	for _, idx := range []struct {
		model  any
		name   string
		column string
	}{
		{(*MessageRow)(nil), "idx_messages_chat", "chat_id"},
		{(*ImageRow)(nil), "idx_images_chat", "chat_id"},
		{(*DocumentRow)(nil), "idx_documents_chat", "chat_id"},
	} {
		if _, err := s.db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.column).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("persistence: create index %s: %w", idx.name, err)
		}
	}
	return nil
}

func (s *Sink) record() contractx.StoredRecord {
	return contractx.StoredRecord{ID: uuid.NewString(), CreatedAt: s.now().UTC()}
}

func (s *Sink) AppendMessage(ctx context.Context, chatID string, in contractx.MessageInput) (contractx.StoredRecord, error) {
	if strings.TrimSpace(chatID) == "" {
		return contractx.StoredRecord{}, fmt.Errorf("%w: chat id is required", contractx.ErrValidation)
	}
	switch in.Sender {
	case contractx.SenderUser, contractx.SenderAssistant:
	default:
		return contractx.StoredRecord{}, fmt.Errorf("%w: unknown sender %q", contractx.ErrValidation, in.Sender)
	}

	rec := s.record()
	row := &MessageRow{
		ID:        rec.ID,
		ChatID:    chatID,
		Content:   in.Content,
		Sender:    string(in.Sender),
		CreatedAt: rec.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return contractx.StoredRecord{}, fmt.Errorf("%w: insert message: %w", contractx.ErrPersistence, err)
	}
	return rec, nil
}

func (s *Sink) AppendImageRecord(ctx context.Context, in contractx.ImageInput) (contractx.StoredRecord, error) {
	if strings.TrimSpace(in.StorageLocation) == "" {
		return contractx.StoredRecord{}, fmt.Errorf("%w: image storage location is required", contractx.ErrValidation)
	}

	rec := s.record()
	row := &ImageRow{
		ID:              rec.ID,
		ChatID:          in.ChatID,
		UserID:          in.UserID,
		Description:     in.Description,
		StorageLocation: in.StorageLocation,
		CreatedAt:       rec.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return contractx.StoredRecord{}, fmt.Errorf("%w: insert image: %w", contractx.ErrPersistence, err)
	}
	return rec, nil
}

func (s *Sink) AppendDocumentRecord(ctx context.Context, in contractx.DocumentInput) (contractx.StoredRecord, error) {
	if strings.TrimSpace(in.ArtifactURL) == "" {
		return contractx.StoredRecord{}, fmt.Errorf("%w: document artifact url is required", contractx.ErrValidation)
	}

	rec := s.record()
	row := &DocumentRow{
		ID:          rec.ID,
		ChatID:      in.ChatID,
		UserID:      in.UserID,
		Name:        in.Name,
		ReportData:  string(in.ReportData),
		ArtifactURL: in.ArtifactURL,
		CreatedAt:   rec.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return contractx.StoredRecord{}, fmt.Errorf("%w: insert document: %w", contractx.ErrPersistence, err)
	}
	return rec, nil
}

// ListMessages returns a chat's messages oldest first.
func (s *Sink) ListMessages(ctx context.Context, chatID string) ([]MessageRow, error) {
	var rows []MessageRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("persistence: list messages: %w", err)
	}
	return rows, nil
}

func (s *Sink) GetImage(ctx context.Context, id string) (*ImageRow, error) {
	row := new(ImageRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("persistence: get image: %w", err)
	}
	return row, nil
}

func (s *Sink) GetDocument(ctx context.Context, id string) (*DocumentRow, error) {
	row := new(DocumentRow)
	if err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, fmt.Errorf("persistence: get document: %w", err)
	}
	return row, nil
}
