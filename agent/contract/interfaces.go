package contract

import (
	"context"

	"github.com/tanpawarit/deep-market-agent/pkg/imagegen"
	"github.com/tanpawarit/deep-market-agent/pkg/tavily"
)

type MemoryStore interface {
	Put(ctx context.Context, ns Namespace, key string, value string) error
	Search(ctx context.Context, ns Namespace, query string, limit int) ([]MemoryHit, error)
	CreateEvent(ctx context.Context, memoryID, actorID, sessionID string, turns []Turn) error
	ListEvents(ctx context.Context, memoryID, actorID, sessionID string, maxResults int) ([]Turn, error)
}

type PersistenceSink interface {
	AppendMessage(ctx context.Context, chatID string, in MessageInput) (StoredRecord, error)
	AppendImageRecord(ctx context.Context, in ImageInput) (StoredRecord, error)
	AppendDocumentRecord(ctx context.Context, in DocumentInput) (StoredRecord, error)
}

type WebResearcher interface {
	Search(ctx context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error)
	Extract(ctx context.Context, urls []string) (*tavily.ExtractResponse, error)
	Crawl(ctx context.Context, req tavily.CrawlRequest) (*tavily.CrawlResponse, error)
}

type ImageGenerator interface {
	Generate(ctx context.Context, description string, userID string) ([]imagegen.Image, error)
}

type ReportRenderer interface {
	Render(ctx context.Context, template string, data any) (string, error)
}

type ReportGenerator interface {
	Generate(ctx context.Context, req ReportRequest) (DocumentRef, error)
}
