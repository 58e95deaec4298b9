package api

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

// Config is the SERVER_* block. WriteTimeout defaults to 0 because a streamed
// turn that builds a report can run for minutes.
type Config struct {
	Addr            string        `envconfig:"ADDR" split_words:"true" default:":8000"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"0s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"30s"`
	DefaultUserID   string        `envconfig:"DEFAULT_USER_ID" split_words:"true" default:"default_user"`
	AllowOrigin     string        `envconfig:"ALLOW_ORIGIN" split_words:"true" default:"*"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: server address is required", contractx.ErrValidation)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("%w: server timeouts must not be negative", contractx.ErrValidation)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8000"
	}
	if strings.TrimSpace(c.DefaultUserID) == "" {
		c.DefaultUserID = "default_user"
	}
	if strings.TrimSpace(c.AllowOrigin) == "" {
		c.AllowOrigin = "*"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}
