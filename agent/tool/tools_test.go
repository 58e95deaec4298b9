package tool

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	"github.com/tanpawarit/deep-market-agent/pkg/imagegen"
	"github.com/tanpawarit/deep-market-agent/pkg/tavily"
)

type fakeMemory struct {
	byNamespace map[string][]contractx.MemoryHit
	gotScopes   []string
}

func (f *fakeMemory) Put(context.Context, contractx.Namespace, string, string) error { return nil }
func (f *fakeMemory) CreateEvent(context.Context, string, string, string, []contractx.Turn) error {
	return nil
}
func (f *fakeMemory) ListEvents(context.Context, string, string, string, int) ([]contractx.Turn, error) {
	return nil, nil
}
func (f *fakeMemory) Search(_ context.Context, ns contractx.Namespace, _ string, _ int) ([]contractx.MemoryHit, error) {
	f.gotScopes = append(f.gotScopes, ns.String())
	return f.byNamespace[ns.String()], nil
}

type fakeWeb struct {
	gotSearch tavily.SearchRequest
	gotCrawl  tavily.CrawlRequest
	err       error
}

func (f *fakeWeb) Search(_ context.Context, req tavily.SearchRequest) (*tavily.SearchResponse, error) {
	f.gotSearch = req
	if f.err != nil {
		return nil, f.err
	}
	return &tavily.SearchResponse{Query: req.Query, Results: []tavily.SearchResult{{Title: "t", URL: "https://a.example"}}}, nil
}

func (f *fakeWeb) Extract(_ context.Context, urls []string) (*tavily.ExtractResponse, error) {
	return &tavily.ExtractResponse{Results: []tavily.ExtractResult{{URL: urls[0], RawContent: "body"}}}, nil
}

func (f *fakeWeb) Crawl(_ context.Context, req tavily.CrawlRequest) (*tavily.CrawlResponse, error) {
	f.gotCrawl = req
	return &tavily.CrawlResponse{BaseURL: req.URL}, nil
}

type fakeImages struct {
	images []imagegen.Image
	err    error
}

func (f *fakeImages) Generate(context.Context, string, string) ([]imagegen.Image, error) {
	return f.images, f.err
}

type fakeSink struct {
	images []contractx.ImageInput
	next   int
}

func (f *fakeSink) AppendMessage(context.Context, string, contractx.MessageInput) (contractx.StoredRecord, error) {
	return contractx.StoredRecord{}, nil
}
func (f *fakeSink) AppendImageRecord(_ context.Context, in contractx.ImageInput) (contractx.StoredRecord, error) {
	f.images = append(f.images, in)
	f.next++
	return contractx.StoredRecord{ID: "img-" + string(rune('0'+f.next)), CreatedAt: time.Now().UTC()}, nil
}
func (f *fakeSink) AppendDocumentRecord(context.Context, contractx.DocumentInput) (contractx.StoredRecord, error) {
	return contractx.StoredRecord{}, nil
}

type fakeReports struct {
	got contractx.ReportRequest
	err error
}

func (f *fakeReports) Generate(_ context.Context, req contractx.ReportRequest) (contractx.DocumentRef, error) {
	f.got = req
	if f.err != nil {
		return contractx.DocumentRef{}, f.err
	}
	return contractx.DocumentRef{DocumentID: "doc-1", ArtifactURL: "https://cdn.example/r.pdf"}, nil
}

var testRC = RunContext{ActorID: "u1", SessionID: "s1", MemoryID: "mem"}

func TestSearchChatHistoryMergesScopes(t *testing.T) {
	t.Parallel()

	mem := &fakeMemory{byNamespace: map[string][]contractx.MemoryHit{
		"/users/u1/sessions/s1": {{Namespace: "/users/u1/sessions/s1", Key: "a", Value: "we sell coffee"}},
		"/users/u1": {
			{Namespace: "/users/u1/sessions/s1", Key: "a", Value: "we sell coffee"},
			{Namespace: "/users/u1/sessions/s0", Key: "z", Value: "based in Bogota"},
		},
	}}
	r, _ := NewRegistry(time.Second, SearchChatHistory(mem))

	res, err := r.Execute(context.Background(), testRC, statex.ToolCall{ID: "c", Name: ToolSearchChatHistory, Arguments: `{"query":"company"}`})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var out struct {
		Matches []historyHit `json:"matches"`
	}
	if err := json.Unmarshal([]byte(res.Content), &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, res.Content)
	}
	if len(out.Matches) != 2 || out.Matches[0].Scope != "this_session" || out.Matches[1].Content != "based in Bogota" {
		t.Fatalf("matches = %+v", out.Matches)
	}
	if len(mem.gotScopes) != 2 {
		t.Fatalf("scopes searched = %v", mem.gotScopes)
	}
}

func TestSearchChatHistoryNoMatches(t *testing.T) {
	t.Parallel()

	r, _ := NewRegistry(time.Second, SearchChatHistory(&fakeMemory{}))
	res, err := r.Execute(context.Background(), testRC, statex.ToolCall{ID: "c", Name: ToolSearchChatHistory, Arguments: `{"query":"x"}`})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Content, "No matching") {
		t.Fatalf("Content = %q", res.Content)
	}
}

func TestWebToolsPassArguments(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{}
	r, _ := NewRegistry(time.Second, WebSearch(web), WebExtract(web), WebCrawl(web))
	ctx := context.Background()

	if _, err := r.Execute(ctx, testRC, statex.ToolCall{ID: "1", Name: ToolWebSearch,
		Arguments: `{"query":"coffee market peru","search_depth":"advanced","max_results":8,"include_domains":["statista.com"]}`}); err != nil {
		t.Fatalf("web_search error = %v", err)
	}
	if web.gotSearch.SearchDepth != "advanced" || web.gotSearch.MaxResults != 8 || len(web.gotSearch.IncludeDomains) != 1 {
		t.Fatalf("search request = %+v", web.gotSearch)
	}

	res, err := r.Execute(ctx, testRC, statex.ToolCall{ID: "2", Name: ToolWebExtract, Arguments: `{"urls":["https://a.example"]}`})
	if err != nil || !strings.Contains(res.Content, "body") {
		t.Fatalf("web_extract = %q, %v", res.Content, err)
	}

	if _, err := r.Execute(ctx, testRC, statex.ToolCall{ID: "3", Name: ToolWebCrawl, Arguments: `{"url":"https://a.example","max_depth":2}`}); err != nil {
		t.Fatalf("web_crawl error = %v", err)
	}
	if web.gotCrawl.MaxDepth != 2 {
		t.Fatalf("crawl request = %+v", web.gotCrawl)
	}
}

func TestWebSearchUpstreamErrorIsToolExecution(t *testing.T) {
	t.Parallel()

	web := &fakeWeb{err: tavily.ErrUpstreamError}
	r, _ := NewRegistry(time.Second, WebSearch(web))
	_, err := r.Execute(context.Background(), testRC, statex.ToolCall{ID: "1", Name: ToolWebSearch, Arguments: `{"query":"x"}`})
	if !errors.Is(err, contractx.ErrToolExecution) || !errors.Is(err, tavily.ErrUpstreamError) {
		t.Fatalf("Execute() error = %v", err)
	}
}

func TestGenerateImagePersistsEachImage(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	gen := &fakeImages{images: []imagegen.Image{
		{StorageLocation: "https://img.example/1.png", Description: "d"},
		{StorageLocation: "https://img.example/2.png", Description: "d"},
	}}
	r, _ := NewRegistry(time.Second, GenerateImage(gen, sink))

	res, err := r.Execute(context.Background(), testRC, statex.ToolCall{ID: "1", Name: ToolGenerateImage, Arguments: `{"description":"coffee farm"}`})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(sink.images) != 2 || sink.images[0].ChatID != "s1" || sink.images[0].UserID != "u1" {
		t.Fatalf("persisted images = %+v", sink.images)
	}
	if !strings.Contains(res.Content, `"image_id":"img-1"`) || !strings.Contains(res.Content, `"image_id":"img-2"`) {
		t.Fatalf("Content = %s", res.Content)
	}
}

func TestGenerateReportReturnsCommand(t *testing.T) {
	t.Parallel()

	reports := &fakeReports{}
	r, _ := NewRegistry(time.Second, GenerateReport(reports))
	rc := testRC
	now := time.Now()
	rc.Messages = []statex.Message{
		statex.UserMessage("We roast coffee in Lima", now),
		statex.AssistantMessage("", []statex.ToolCall{{ID: "x", Name: "web_search"}}, now),
	}

	res, err := r.Execute(context.Background(), rc, statex.ToolCall{ID: "1", Name: ToolGenerateReport, Arguments: `{"query":"coffee market"}`})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsCommand() || *res.Patch.PendingDocumentID != "doc-1" || *res.Patch.PendingReportURL != "https://cdn.example/r.pdf" {
		t.Fatalf("Result = %+v", res)
	}
	if len(reports.got.Messages) != 1 || reports.got.ChatID != "s1" || reports.got.Query != "coffee market" {
		t.Fatalf("report request = %+v", reports.got)
	}
}

func TestGenerateReportFailureIsToolError(t *testing.T) {
	t.Parallel()

	stageErr := &contractx.PipelineStageError{Stage: "render", Err: errors.New("502")}
	r, _ := NewRegistry(time.Second, GenerateReport(&fakeReports{err: stageErr}))
	_, err := r.Execute(context.Background(), testRC, statex.ToolCall{ID: "1", Name: ToolGenerateReport, Arguments: `{"query":"q"}`})
	if !errors.Is(err, contractx.ErrToolExecution) || !errors.Is(err, contractx.ErrPipelineStage) {
		t.Fatalf("Execute() error = %v", err)
	}
}
