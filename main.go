package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/deep-market-agent/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	"github.com/tanpawarit/deep-market-agent/agent/llm"
	"github.com/tanpawarit/deep-market-agent/agent/memory"
	"github.com/tanpawarit/deep-market-agent/agent/persistence"
	promptx "github.com/tanpawarit/deep-market-agent/agent/prompt"
	"github.com/tanpawarit/deep-market-agent/agent/report"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	"github.com/tanpawarit/deep-market-agent/agent/tool"
	"github.com/tanpawarit/deep-market-agent/api"
	configx "github.com/tanpawarit/deep-market-agent/pkg/config"
	"github.com/tanpawarit/deep-market-agent/pkg/imagegen"
	logx "github.com/tanpawarit/deep-market-agent/pkg/logger"
	"github.com/tanpawarit/deep-market-agent/pkg/metrics"
	openrouterx "github.com/tanpawarit/deep-market-agent/pkg/openrouter"
	"github.com/tanpawarit/deep-market-agent/pkg/render"
	"github.com/tanpawarit/deep-market-agent/pkg/tavily"
)

func main() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("deep market agent stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	llmCfg := configx.MustNew[llm.Config]("LLM")
	agentCfg := configx.MustNew[orchestrator.Config]("AGENT")
	reportCfg := configx.MustNew[report.Config]("REPORT")
	serverCfg := configx.MustNew[api.Config]("SERVER")

	prompts := promptx.LoadPromptSet()
	if err := prompts.Validate(); err != nil {
		return err
	}

	mem, err := memory.New(*configx.MustNew[memory.Config]("MEMORY"))
	if err != nil {
		return err
	}
	defer mem.Close()

	sink, err := persistence.Open(ctx, *configx.MustNew[persistence.Config]("DATABASE"))
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.EnsureSchema(ctx); err != nil {
		return err
	}

	store, err := newCheckpointStore(ctx, agentCfg.CheckpointMessages)
	if err != nil {
		return err
	}

	pool := openrouterx.NewPool(nil)
	chatModel, err := pool.Get(ctx, llmCfg.For(contractx.StageChat))
	if err != nil {
		return err
	}
	gateway, err := llm.NewGateway(chatModel, contractx.StageChat)
	if err != nil {
		return err
	}

	tools := []tool.Tool{tool.SearchChatHistory(mem)}
	if cfg := configx.MustNew[tavily.Config]("TAVILY"); cfg.Enabled() {
		web, err := tavily.New(*cfg)
		if err != nil {
			return err
		}
		tools = append(tools, tool.WebSearch(web), tool.WebExtract(web), tool.WebCrawl(web))
	} else {
		log.Warn().Msg("tavily is not configured, web research tools are disabled")
	}

	var images contractx.ImageGenerator
	if cfg := configx.MustNew[imagegen.Config]("IMAGEGEN"); cfg.Enabled() {
		gen, err := imagegen.New(*cfg)
		if err != nil {
			return err
		}
		images = gen
		tools = append(tools, tool.GenerateImage(gen, sink))
	} else {
		log.Warn().Msg("image generation is not configured, reports will have no pictures")
	}

	if cfg := configx.MustNew[render.Config]("RENDER"); cfg.Enabled() {
		renderer, err := render.New(*cfg)
		if err != nil {
			return err
		}
		pipeline, err := newReportPipeline(ctx, pool, llmCfg, *reportCfg, prompts, report.Deps{
			Images:   images,
			Sink:     sink,
			Renderer: renderer,
		})
		if err != nil {
			return err
		}
		tools = append(tools, tool.GenerateReport(pipeline))
	} else {
		log.Warn().Msg("render service is not configured, report generation is disabled")
	}
	tools = append(tools, tool.MathEvaluate())

	registry, err := tool.NewRegistry(agentCfg.ToolTimeout, tools...)
	if err != nil {
		return err
	}

	agent, err := orchestrator.New(store, gateway, registry, sink, mem, prompts.System, *agentCfg)
	if err != nil {
		return err
	}

	server, err := api.NewServer(*serverCfg, agent)
	if err != nil {
		return err
	}
	log.Info().Strs("tools", registry.Names()).Int("models", pool.Len()).Msg("deep market agent ready")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return server.Shutdown(context.Background())
}

// newCheckpointStore prefers Upstash over REST, then a native Redis server,
// then process memory.
func newCheckpointStore(ctx context.Context, tail int) (statex.Store, error) {
	cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if !cfg.Enabled() {
		redisCfg := configx.MustNew[statex.RedisConfig]("REDIS")
		if !redisCfg.Enabled() {
			log.Warn().Msg("redis is not configured, checkpoints are kept in process memory")
			return statex.NewInMemoryStore(tail), nil
		}
		store, err := statex.NewRedisStore(*redisCfg, tail)
		if err != nil {
			return nil, fmt.Errorf("checkpoint store: %w", err)
		}
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("checkpoint store: ping redis: %w", err)
		}
		return store, nil
	}
	store, err := statex.NewUpstashRedisStore(*cfg,
		statex.WithKeyPrefix(cfg.KeyPrefix),
		statex.WithTTL(cfg.TTL),
		statex.WithTailMessages(tail),
	)
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	return store, nil
}

func newReportPipeline(
	ctx context.Context,
	pool *openrouterx.Pool,
	llmCfg *llm.Config,
	cfg report.Config,
	prompts promptx.PromptSet,
	deps report.Deps,
) (*report.Pipeline, error) {
	extract, err := pool.Get(ctx, llmCfg.For(contractx.StageExtract))
	if err != nil {
		return nil, err
	}
	imageQuery, err := pool.Get(ctx, llmCfg.For(contractx.StageImageQuery))
	if err != nil {
		return nil, err
	}
	definition, err := pool.Get(ctx, llmCfg.For(contractx.StageReport))
	if err != nil {
		return nil, err
	}
	return report.New(ctx, cfg, prompts, report.Models{
		Extract:    extract,
		ImageQuery: imageQuery,
		Definition: definition,
	}, deps)
}
