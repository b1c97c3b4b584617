// Package config loads the harness configuration: YAML decoded with
// strict field checking (typos are errors, not silent defaults) and then
// validated against an embedded CUE schema before any defaults apply.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Tolerances holds the numeric comparison knobs.
type Tolerances struct {
	ConservationDivisor int64   `yaml:"conservation_divisor"`
	LiquidityRel        float64 `yaml:"liquidity_rel"`
}

// ContractWeight assigns a selection weight to a contract by name.
type ContractWeight struct {
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// ActorSpec is one configured test identity.
type ActorSpec struct {
	Name        string `yaml:"name"`
	ColdkeySeed string `yaml:"coldkey_seed"`
	HotkeySeed  string `yaml:"hotkey_seed"`
}

// Config is the full harness configuration.
type Config struct {
	PageSize   int              `yaml:"page_size"`
	Seed       uint64           `yaml:"seed"`
	Runs       int              `yaml:"runs"`
	Journal    string           `yaml:"journal"`
	LocalChain string           `yaml:"local_chain"`
	Tolerances Tolerances       `yaml:"tolerances"`
	Contracts  []ContractWeight `yaml:"contracts"`
	Actors     []ActorSpec      `yaml:"actors"`
}

// Defaults for fields the file omits.
const (
	DefaultPageSize            = 1000
	DefaultRuns                = 100
	DefaultJournal             = "qa.journal"
	DefaultConservationDivisor = 1000
	DefaultLiquidityRel        = 1e-6
)

// Load reads, validates, and defaults the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates and defaults raw YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject unknown fields
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// validateSchema unifies the raw document with the embedded CUE schema.
// Schema errors carry the offending path, which a strict YAML decode
// alone would not report.
func validateSchema(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	unified := schema.Unify(ctx.Encode(raw))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Runs == 0 {
		c.Runs = DefaultRuns
	}
	if c.Journal == "" {
		c.Journal = DefaultJournal
	}
	if c.Tolerances.ConservationDivisor == 0 {
		c.Tolerances.ConservationDivisor = DefaultConservationDivisor
	}
	if c.Tolerances.LiquidityRel == 0 {
		c.Tolerances.LiquidityRel = DefaultLiquidityRel
	}
}
