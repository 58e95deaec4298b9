package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	promptx "github.com/tanpawarit/deep-market-agent/agent/prompt"
	"github.com/tanpawarit/deep-market-agent/agent/tool"
	"github.com/tanpawarit/deep-market-agent/pkg/imagegen"
	"github.com/tanpawarit/deep-market-agent/pkg/metrics"
)

const (
	extractInput    = "Focus of the report: {query}\n\nConversation:\n{conversation}"
	imageQueryInput = "Report information:\n{info}"
	definitionInput = "Number of highlights: {highlight_count}\n\nAvailable images:\n{images}\n\nResearch notes:\n{info}"
)

// Models carries the chat model of each model-backed stage.
type Models struct {
	Extract    einomodel.BaseChatModel
	ImageQuery einomodel.BaseChatModel
	Definition einomodel.BaseChatModel
}

// Deps are the external collaborators. Images may be nil, in which case the
// report is built without pictures.
type Deps struct {
	Images   contractx.ImageGenerator
	Sink     contractx.PersistenceSink
	Renderer contractx.ReportRenderer
}

type Option func(*Pipeline)

// WithClock overrides the clock used for the report date.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline runs extract -> image_query -> images -> definition -> render/persist.
type Pipeline struct {
	cfg      Config
	template string

	extract    compose.Runnable[map[string]any, string]
	imageQuery compose.Runnable[map[string]any, string]
	definition compose.Runnable[map[string]any, Draft]

	images   contractx.ImageGenerator
	sink     contractx.PersistenceSink
	renderer contractx.ReportRenderer
	now      func() time.Time
}

var _ contractx.ReportGenerator = (*Pipeline)(nil)

func New(ctx context.Context, cfg Config, prompts promptx.PromptSet, models Models, deps Deps, opts ...Option) (*Pipeline, error) {
	if models.Extract == nil || models.ImageQuery == nil || models.Definition == nil {
		return nil, fmt.Errorf("%w: report models are required", contractx.ErrValidation)
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("%w: persistence sink is required", contractx.ErrValidation)
	}
	if deps.Renderer == nil {
		return nil, fmt.Errorf("%w: report renderer is required", contractx.ErrValidation)
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	extract, err := compileTextGraph(ctx, models.Extract, prompts.Extract, extractInput, "report.extract_graph")
	if err != nil {
		return nil, fmt.Errorf("compile extract graph: %w", err)
	}
	imageQuery, err := compileTextGraph(ctx, models.ImageQuery, prompts.ImageQuery, imageQueryInput, "report.image_query_graph")
	if err != nil {
		return nil, fmt.Errorf("compile image query graph: %w", err)
	}
	definition, err := compileStructuredGraph[Draft](ctx, models.Definition, prompts.ReportDefinition, definitionInput, "report.definition_graph")
	if err != nil {
		return nil, fmt.Errorf("compile definition graph: %w", err)
	}

	p := &Pipeline{
		cfg:        cfg.withDefaults(),
		template:   prompts.ReportTemplate,
		extract:    extract,
		imageQuery: imageQuery,
		definition: definition,
		images:     deps.Images,
		sink:       deps.Sink,
		renderer:   deps.Renderer,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Generate satisfies contract.ReportGenerator for the generate_report tool.
func (p *Pipeline) Generate(ctx context.Context, req contractx.ReportRequest) (contractx.DocumentRef, error) {
	out, err := p.Run(ctx, req)
	if err != nil {
		return contractx.DocumentRef{}, err
	}
	return out.Document, nil
}

// Run executes every stage in order. The first failing stage aborts the run with a
// *contract.PipelineStageError and no document is recorded.
func (p *Pipeline) Run(ctx context.Context, in Input) (Output, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return Output{}, fmt.Errorf("%w: report query is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.ChatID) == "" || strings.TrimSpace(in.UserID) == "" {
		return Output{}, fmt.Errorf("%w: chat id and user id are required", contractx.ErrValidation)
	}

	logger := log.With().Str("chat_id", in.ChatID).Str("user_id", in.UserID).Logger()
	var out Output

	err := p.stage(ctx, StageExtract, func(ctx context.Context) error {
		text, err := p.extract.Invoke(ctx, map[string]any{
			"query":        query,
			"conversation": formatTranscript(in.Messages, p.cfg.MaxTranscript),
		})
		if err != nil {
			return err
		}
		out.Info = plainProse(text)
		if out.Info == "" {
			return fmt.Errorf("%w: extracted information is empty", contractx.ErrSchemaViolation)
		}
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	var imageQuery string
	err = p.stage(ctx, StageImageQuery, func(ctx context.Context) error {
		if p.images == nil {
			return nil
		}
		text, err := p.imageQuery.Invoke(ctx, map[string]any{"info": out.Info})
		if err != nil {
			return err
		}
		imageQuery = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	err = p.stage(ctx, StageImages, func(ctx context.Context) error {
		if p.images == nil || imageQuery == "" {
			return nil
		}
		images, err := tool.GenerateImages(ctx, p.images, p.sink, in.ChatID, in.UserID, imageQuery)
		if errors.Is(err, imagegen.ErrNoImages) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Images = images
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	var draft Draft
	err = p.stage(ctx, StageDefinition, func(ctx context.Context) error {
		raw, err := p.definition.Invoke(ctx, map[string]any{
			"highlight_count": strconv.Itoa(p.cfg.HighlightCount),
			"images":          formatImages(out.Images),
			"info":            out.Info,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", contractx.ErrSchemaViolation, err)
		}
		draft, err = checkDraft(raw, p.cfg.HighlightCount)
		return err
	})
	if err != nil {
		return Output{}, err
	}

	out.Report = finalize(p.cfg, query, draft, out.Images, p.now())
	if dropped := unresolvedImageIDs(draft, out.Images); len(dropped) > 0 {
		logger.Warn().Strs("image_ids", dropped).Msg("report cited unknown image ids; rendering those highlights without images")
	}

	var artifactURL string
	err = p.stage(ctx, StageRender, func(ctx context.Context) error {
		url, err := p.renderer.Render(ctx, p.template, out.Report)
		if err != nil {
			return err
		}
		artifactURL = url
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	err = p.stage(ctx, StagePersist, func(ctx context.Context) error {
		data, err := json.Marshal(out.Report)
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		rec, err := p.sink.AppendDocumentRecord(ctx, contractx.DocumentInput{
			ChatID:      in.ChatID,
			UserID:      in.UserID,
			Name:        p.cfg.DocumentName,
			ReportData:  data,
			ArtifactURL: artifactURL,
		})
		if err != nil {
			return err
		}
		out.Document = contractx.DocumentRef{DocumentID: rec.ID, ArtifactURL: artifactURL}
		return nil
	})
	if err != nil {
		return Output{}, err
	}

	logger.Info().
		Str("document_id", out.Document.DocumentID).
		Int("images", len(out.Images)).
		Int("highlights", len(out.Report.Highlights)).
		Msg("report generated")
	return out, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &contractx.PipelineStageError{Stage: name, Err: contractx.ClassifyUpstream(err)}
	}
	start := time.Now()
	err := fn(ctx)
	metrics.RecordPipelineStage(name, time.Since(start), err)
	if err != nil {
		return &contractx.PipelineStageError{Stage: name, Err: contractx.ClassifyUpstream(err)}
	}
	return nil
}

func unresolvedImageIDs(draft Draft, images []contractx.GeneratedImage) []string {
	known := make(map[string]struct{}, len(images))
	for _, img := range images {
		known[img.ImageID] = struct{}{}
	}
	var out []string
	for _, h := range draft.Highlights {
		id := strings.TrimSpace(h.ImageID)
		if id == "" {
			continue
		}
		if _, ok := known[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
