package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/rescatter/internal/analysis"
	"github.com/rewired-gh/rescatter/internal/kinematics"
	"github.com/rewired-gh/rescatter/internal/models"
	"github.com/rewired-gh/rescatter/internal/record"
)

// Config represents the complete application configuration
type Config struct {
	Input        InputConfig        `mapstructure:"input"`
	Schema       SchemaConfig       `mapstructure:"schema"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Binning      BinningConfig      `mapstructure:"binning"`
	NetGain      NetGainConfig      `mapstructure:"net_gain"`
	Channels     []analysis.Channel `mapstructure:"channels"`
	Multiplicity MultiplicityConfig `mapstructure:"multiplicity"`
	Temporal     TemporalConfig     `mapstructure:"temporal"`
	Output       OutputConfig       `mapstructure:"output"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// InputConfig holds the manifest and worker settings
type InputConfig struct {
	Manifest       string `mapstructure:"manifest"`
	StrictManifest bool   `mapstructure:"strict_manifest"`
	Workers        int    `mapstructure:"workers"`
}

// SchemaConfig selects the column layout of the logs. Active applies to
// every analysis unless Overrides names another variant for it. A name is
// looked up in Variants first, then among the built-in schemas. Variant
// names are case-insensitive.
type SchemaConfig struct {
	Active    string                   `mapstructure:"active"`
	Overrides map[string]string        `mapstructure:"overrides"`
	Variants  map[string]VariantConfig `mapstructure:"variants"`
}

// VariantConfig is a custom column layout. Columns left unset keep the
// value of Base; -1 marks a column as absent.
type VariantConfig struct {
	Base               string `mapstructure:"base"`
	Time               *int   `mapstructure:"time"`
	X                  *int   `mapstructure:"x"`
	Y                  *int   `mapstructure:"y"`
	Z                  *int   `mapstructure:"z"`
	Mass               *int   `mapstructure:"mass"`
	Energy             *int   `mapstructure:"energy"`
	Px                 *int   `mapstructure:"px"`
	Py                 *int   `mapstructure:"py"`
	Pz                 *int   `mapstructure:"pz"`
	PDG                *int   `mapstructure:"pdg"`
	ID                 *int   `mapstructure:"id"`
	Charge             *int   `mapstructure:"charge"`
	NColl              *int   `mapstructure:"ncoll"`
	FormationTime      *int   `mapstructure:"formation_time"`
	LastCollisionTime  *int   `mapstructure:"last_collision_time"`
	ExactColumns       *int   `mapstructure:"exact_columns"`
	EventHeaderColumns *int   `mapstructure:"event_header_columns"`
}

// LedgerConfig holds decay tracking configuration
type LedgerConfig struct {
	Resonances []int `mapstructure:"resonances"`
	DecayType  int   `mapstructure:"decay_type"`
}

// BinningConfig holds time binning configuration
type BinningConfig struct {
	Width float64 `mapstructure:"width"`
}

// NetGainConfig lists the species followed by the net gain analysis
type NetGainConfig struct {
	Species []analysis.Species `mapstructure:"species"`
}

// MultiplicityConfig holds the acceptance of counted charged particles
type MultiplicityConfig struct {
	Cuts kinematics.Cuts `mapstructure:"cuts"`
}

// TemporalConfig holds temporal evolution configuration
type TemporalConfig struct {
	Species []analysis.Species `mapstructure:"species"`
	EtaMax  float64            `mapstructure:"eta_max"`
}

// OutputConfig holds result output configuration
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	DBPath      string `mapstructure:"db_path"`
	SummaryJSON bool   `mapstructure:"summary_json"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	// RESCATTER_INPUT_MANIFEST overrides input.manifest
	v.SetEnvPrefix("RESCATTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

var kstarResonances = []int{313, -313, 323, -323}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("input.manifest", "test.txt")
	v.SetDefault("input.strict_manifest", false)
	v.SetDefault("input.workers", 4)

	v.SetDefault("schema.active", "oscar2013")
	v.SetDefault("schema.overrides", map[string]string{
		models.AnalysisNetGain:  "oscar2013_extended",
		models.AnalysisTemporal: "oscar1999",
	})

	v.SetDefault("ledger.resonances", kstarResonances)
	v.SetDefault("ledger.decay_type", models.DecayProcessType)

	v.SetDefault("binning.width", 1.0)

	v.SetDefault("net_gain.species", []map[string]any{
		{"name": "K*", "pdg": 313},
		{"name": "rho", "pdg": 113},
		{"name": "phi", "pdg": 333},
		{"name": "Lambda*", "pdg": 3124},
		{"name": "Sigma*", "pdg": 3214},
	})

	v.SetDefault("channels", []map[string]any{
		{
			"name":             "kstar_kminus",
			"resonances":       kstarResonances,
			"daughter_species": []int{321, -321},
			"target_species":   []int{321, -321},
			"pair_rule":        "unseen",
		},
		{
			"name":             "kstar_photon",
			"resonances":       []int{313, -313, 323, -323, 10313, -10313, 20313, -20313},
			"daughter_species": []int{311, -311, 22},
			"target_species":   []int{22},
			"pair_rule":        "both_seen",
			"cuts": map[string]any{
				"enabled": true,
				"eta_min": -0.5,
				"eta_max": 0.5,
				"pt_min":  0.2,
				"pt_max":  5.0,
			},
		},
	})

	v.SetDefault("multiplicity.cuts.enabled", false)
	v.SetDefault("multiplicity.cuts.eta_min", -0.5)
	v.SetDefault("multiplicity.cuts.eta_max", 0.5)

	v.SetDefault("temporal.species", []map[string]any{
		{"name": "K*0", "pdg": 313},
		{"name": "K-", "pdg": -321},
	})
	v.SetDefault("temporal.eta_max", 0.5)

	v.SetDefault("output.dir", "./results")
	v.SetDefault("output.db_path", "")
	v.SetDefault("output.summary_json", true)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Input.Manifest) == "" {
		return fmt.Errorf("input.manifest is required")
	}
	if c.Input.Workers < 1 {
		return fmt.Errorf("input.workers must be at least 1")
	}

	// Every analysis must resolve to a usable schema
	for _, name := range Analyses() {
		if _, err := c.SchemaFor(name); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}

	if len(c.Ledger.Resonances) == 0 {
		return fmt.Errorf("ledger.resonances must contain at least one species code")
	}
	if c.Ledger.DecayType < 0 {
		return fmt.Errorf("ledger.decay_type must not be negative")
	}

	if c.Binning.Width <= 0 {
		return fmt.Errorf("binning.width must be positive")
	}

	for i, s := range c.NetGain.Species {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("net_gain.species[%d]: %w", i, err)
		}
	}

	seen := make(map[string]bool, len(c.Channels))
	for i := range c.Channels {
		ch := &c.Channels[i]
		if err := ch.Validate(); err != nil {
			return fmt.Errorf("channels[%d]: %w", i, err)
		}
		if seen[ch.Name] {
			return fmt.Errorf("channels[%d]: duplicate channel name %s", i, ch.Name)
		}
		seen[ch.Name] = true
	}

	if err := c.Multiplicity.Cuts.Validate(); err != nil {
		return fmt.Errorf("multiplicity.cuts: %w", err)
	}

	for i, s := range c.Temporal.Species {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("temporal.species[%d]: %w", i, err)
		}
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Analyses returns the names of every supported analysis.
func Analyses() []string {
	return []string{
		models.AnalysisDetection,
		models.AnalysisNetGain,
		models.AnalysisRatio,
		models.AnalysisMultiplicity,
		models.AnalysisTemporal,
	}
}

// SchemaFor resolves the column schema used by an analysis.
func (c *Config) SchemaFor(analysisName string) (record.Schema, error) {
	name := c.Schema.Active
	if override, ok := c.Schema.Overrides[analysisName]; ok && override != "" {
		name = override
	}
	schema, err := c.resolveSchema(name)
	if err != nil {
		return record.Schema{}, err
	}
	if analysisName == models.AnalysisNetGain && !record.Has(schema.LastCollisionTime) {
		return record.Schema{}, fmt.Errorf("%s analysis needs a last_collision_time column, schema %s has none", analysisName, name)
	}
	if analysisName == models.AnalysisNetGain && !record.Has(schema.FormationTime) {
		return record.Schema{}, fmt.Errorf("%s analysis needs a formation_time column, schema %s has none", analysisName, name)
	}
	return schema, nil
}

func (c *Config) resolveSchema(name string) (record.Schema, error) {
	v, ok := c.Schema.Variants[strings.ToLower(name)]
	if !ok {
		s, ok := record.Builtin(name)
		if !ok {
			return record.Schema{}, fmt.Errorf("unknown schema %q (known: %s)", name, strings.Join(c.SchemaNames(), ", "))
		}
		return s, nil
	}

	base := record.Reduced()
	base.Time, base.PDG, base.ID = record.Absent, record.Absent, record.Absent
	if v.Base != "" {
		b, ok := record.Builtin(v.Base)
		if !ok {
			return record.Schema{}, fmt.Errorf("schema %s: unknown base %q", name, v.Base)
		}
		base = b
	}
	base.Name = name

	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.Time, v.Time)
	set(&base.X, v.X)
	set(&base.Y, v.Y)
	set(&base.Z, v.Z)
	set(&base.Mass, v.Mass)
	set(&base.Energy, v.Energy)
	set(&base.Px, v.Px)
	set(&base.Py, v.Py)
	set(&base.Pz, v.Pz)
	set(&base.PDG, v.PDG)
	set(&base.ID, v.ID)
	set(&base.Charge, v.Charge)
	set(&base.NColl, v.NColl)
	set(&base.FormationTime, v.FormationTime)
	set(&base.LastCollisionTime, v.LastCollisionTime)
	set(&base.ExactColumns, v.ExactColumns)
	set(&base.EventHeaderColumns, v.EventHeaderColumns)

	if err := base.Validate(); err != nil {
		return record.Schema{}, err
	}
	return base, nil
}

// SchemaNames lists the built-in and configured schema names.
func (c *Config) SchemaNames() []string {
	names := []string{"oscar2013", "oscar2013_extended", "reduced", "oscar1999"}
	custom := make([]string, 0, len(c.Schema.Variants))
	for name := range c.Schema.Variants {
		custom = append(custom, name)
	}
	sort.Strings(custom)
	return append(names, custom...)
}

// Channel returns the configured channel called name.
func (c *Config) Channel(name string) (analysis.Channel, error) {
	for _, ch := range c.Channels {
		if ch.Name == name {
			return ch, nil
		}
	}
	names := make([]string, 0, len(c.Channels))
	for _, ch := range c.Channels {
		names = append(names, ch.Name)
	}
	return analysis.Channel{}, fmt.Errorf("unknown channel %q (configured: %s)", name, strings.Join(names, ", "))
}

// Analyzers builds the analyzers for one run of analysisName. For the ratio
// analysis, channel selects a single configured channel; an empty channel
// selects all of them in configuration order.
func (c *Config) Analyzers(analysisName, channel string) ([]analysis.Analyzer, error) {
	schema, err := c.SchemaFor(analysisName)
	if err != nil {
		return nil, err
	}

	switch analysisName {
	case models.AnalysisDetection:
		return []analysis.Analyzer{&analysis.Detection{
			Schema:     schema,
			Resonances: c.Ledger.Resonances,
			DecayType:  c.Ledger.DecayType,
			Width:      c.Binning.Width,
		}}, nil
	case models.AnalysisNetGain:
		return []analysis.Analyzer{&analysis.NetGain{
			Schema:  schema,
			Species: c.NetGain.Species,
			Width:   c.Binning.Width,
		}}, nil
	case models.AnalysisRatio:
		channels := c.Channels
		if channel != "" {
			ch, err := c.Channel(channel)
			if err != nil {
				return nil, err
			}
			channels = []analysis.Channel{ch}
		}
		if len(channels) == 0 {
			return nil, fmt.Errorf("%s analysis needs at least one configured channel", analysisName)
		}
		out := make([]analysis.Analyzer, 0, len(channels))
		for _, ch := range channels {
			out = append(out, &analysis.ChannelRatio{
				Schema:    schema,
				DecayType: c.Ledger.DecayType,
				Channel:   ch,
			})
		}
		return out, nil
	case models.AnalysisMultiplicity:
		return []analysis.Analyzer{&analysis.Multiplicity{
			Schema: schema,
			Cuts:   c.Multiplicity.Cuts,
		}}, nil
	case models.AnalysisTemporal:
		return []analysis.Analyzer{&analysis.Temporal{
			Schema:  schema,
			Species: c.Temporal.Species,
			EtaMax:  c.Temporal.EtaMax,
		}}, nil
	}
	return nil, fmt.Errorf("unknown analysis %q (known: %s)", analysisName, strings.Join(Analyses(), ", "))
}
