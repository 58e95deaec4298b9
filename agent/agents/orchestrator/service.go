package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	nodex "github.com/tanpawarit/deep-market-agent/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/deep-market-agent/agent/state"
	logx "github.com/tanpawarit/deep-market-agent/pkg/logger"
	"github.com/tanpawarit/deep-market-agent/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
	ErrInvalidActor   = nodex.ErrInvalidActor
)

// Tools is the registry view the orchestrator needs: schemas for the model and execution.
type Tools interface {
	nodex.ToolRunner
	Infos() []*schema.ToolInfo
}

type Orchestrator struct {
	store     statex.Store
	gateway   nodex.ChatGateway
	tools     Tools
	memory    contractx.MemoryStore
	persister *nodex.Persister

	systemPrompt string
	cfg          Config

	// (actor, session) keys with a turn in flight.
	inflight sync.Map

	now func() time.Time
}

func New(
	store statex.Store,
	gateway nodex.ChatGateway,
	tools Tools,
	sink contractx.PersistenceSink,
	memory contractx.MemoryStore,
	systemPrompt string,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if gateway == nil {
		return nil, errors.New("model gateway is required")
	}
	if tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	cfg = cfg.withDefaults()

	return &Orchestrator{
		store:        store,
		gateway:      gateway,
		tools:        tools,
		memory:       memory,
		persister:    nodex.NewPersister(sink, memory, cfg.PersistTimeout),
		systemPrompt: strings.TrimSpace(systemPrompt),
		cfg:          cfg,
		now:          time.Now,
	}, nil
}

// RunTurn starts one turn and streams its events. Invalid input and a session that
// already has a turn in flight are reported synchronously; everything after that
// arrives on the channel, which is closed when the turn ends.
func (o *Orchestrator) RunTurn(ctx context.Context, sc SessionContext, prompt string) (<-chan Event, error) {
	in, release, err := o.begin(sc, prompt)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, o.cfg.EventBuffer)
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(events)
		defer release()

		out, err := o.run(ctx, in, func(text string) {
			emit(Event{Type: EventTextDelta, Text: text})
		})
		if err != nil {
			emit(Event{Type: EventError, Failure: failureFor(err)})
			return
		}
		if out.Reference != nil {
			emit(Event{Type: EventFinalReference, Reference: out.Reference})
		}
	}()
	return events, nil
}

// HandleMessage runs one turn to completion and returns the terminal reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, sc SessionContext, prompt string) (Reply, error) {
	in, release, err := o.begin(sc, prompt)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	in, err = o.run(ctx, in, nil)
	if err != nil {
		return Reply{}, failureFor(err)
	}
	return Reply{Message: in.Reply.Content, Reference: in.Reference}, nil
}

func (o *Orchestrator) begin(sc SessionContext, prompt string) (*nodex.TurnState, func(), error) {
	in, err := nodex.ValidateRequest(nodex.TurnInput{
		ActorID:   sc.ActorID,
		SessionID: sc.SessionID,
		MemoryID:  sc.MemoryID,
		Text:      prompt,
	}, o.now)
	if err != nil {
		metrics.RecordTurn("error")
		return nil, nil, err
	}

	key := in.ActorID + "\x00" + in.SessionID
	if _, busy := o.inflight.LoadOrStore(key, struct{}{}); busy {
		metrics.RecordTurn("busy")
		return nil, nil, contractx.ErrSessionBusy
	}
	return in, func() { o.inflight.Delete(key) }, nil
}

func (o *Orchestrator) run(ctx context.Context, in *nodex.TurnState, onText func(string)) (*nodex.TurnState, error) {
	logger := logx.Session(in.ActorID, in.SessionID)
	started := time.Now()

	out, err := o.runStateMachine(ctx, in, onText)

	metrics.RecordTurn(outcome(err))
	if err != nil {
		logger.Error().Err(err).Int("step", in.Steps).Dur("elapsed", time.Since(started)).Msg("turn failed")
		return nil, err
	}
	logger.Info().Int("step", out.Steps).Dur("elapsed", time.Since(started)).Msg("turn completed")
	return out, nil
}
