package orchestrator

import (
	"fmt"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

// Config is the AGENT_* block. It is read once at start-up and never mutated.
type Config struct {
	ContextWindow      int           `envconfig:"CONTEXT_WINDOW" split_words:"true" default:"6"`
	MaxSteps           int           `envconfig:"MAX_STEPS" split_words:"true" default:"50"`
	ToolTimeout        time.Duration `envconfig:"TOOL_TIMEOUT" split_words:"true" default:"300s"`
	PersistTimeout     time.Duration `envconfig:"PERSIST_TIMEOUT" split_words:"true" default:"10s"`
	CheckpointMessages int           `envconfig:"CHECKPOINT_MESSAGES" split_words:"true" default:"40"`
	SeedEvents         int           `envconfig:"SEED_EVENTS" split_words:"true" default:"20"`
	EventBuffer        int           `envconfig:"EVENT_BUFFER" split_words:"true" default:"64"`
}

func (c *Config) Validate() error {
	if c.ContextWindow <= 0 {
		return fmt.Errorf("%w: context window must be positive", contractx.ErrValidation)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("%w: max steps must be positive", contractx.ErrValidation)
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("%w: persist timeout must be positive", contractx.ErrValidation)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ContextWindow <= 0 {
		c.ContextWindow = 6
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 50
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	return c
}
