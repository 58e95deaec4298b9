package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kelseyhightower/envconfig"
)

type sampleConfig struct {
	Window int    `envconfig:"WINDOW" default:"6"`
	Name   string `envconfig:"NAME"`
}

func (c *sampleConfig) Validate() error {
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

func TestExportEnvironmentKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFGTEST_NAME=from-file\nCFGTEST_WINDOW=9\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CFGTEST_NAME", "from-env")
	t.Setenv("CFGTEST_WINDOW", "")
	os.Unsetenv("CFGTEST_WINDOW")

	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}

	var conf sampleConfig
	if err := envconfig.Process("CFGTEST", &conf); err != nil {
		t.Fatal(err)
	}
	if conf.Name != "from-env" {
		t.Fatalf("Name = %q, want from-env", conf.Name)
	}
	if conf.Window != 9 {
		t.Fatalf("Window = %d, want 9", conf.Window)
	}
}

func TestExportEnvironmentIfExistsMissingFile(t *testing.T) {
	t.Parallel()

	if err := exportEnvironmentIfExists(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("exportEnvironmentIfExists() error = %v", err)
	}
}

func TestValidatorIsApplied(t *testing.T) {
	conf := &sampleConfig{Window: 0}
	var v any = conf
	validator, ok := v.(Validator)
	if !ok {
		t.Fatal("sampleConfig does not satisfy Validator")
	}
	if err := validator.Validate(); err == nil {
		t.Fatal("Validate() accepted window 0")
	}
}
