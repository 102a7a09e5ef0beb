package symbolizer

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/drone/envsubst"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/grafana/breakpad-symbolizer/pkg/supplier"
)

type Config struct {
	Symbols supplier.Config `yaml:"symbols"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.Symbols.RegisterFlags(f)
}

func (cfg *Config) Validate() error {
	return cfg.Symbols.Validate()
}

// LoadConfig overlays the YAML file at path onto cfg. With expandEnv set,
// ${VAR} references in the file are replaced by environment variables
// first. Unknown fields are an error.
func LoadConfig(path string, expandEnv bool, cfg *Config) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if expandEnv {
		s, err := envsubst.EvalEnv(string(buf))
		if err != nil {
			return fmt.Errorf("expand environment variables in %s: %w", path, err)
		}
		buf = []byte(s)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// NewFromConfig builds a Symbolizer over the suppliers described by cfg.
func NewFromConfig(ctx context.Context, cfg Config, logger log.Logger, reg prometheus.Registerer) (*Symbolizer, error) {
	s, err := supplier.NewFromConfig(ctx, cfg.Symbols, logger, reg)
	if err != nil {
		return nil, err
	}
	return New(s, logger, reg), nil
}
