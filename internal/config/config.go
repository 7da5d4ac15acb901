// Package config provides unified configuration loading for crowdsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/crowdsim/internal/constants"
	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"
)

// CrowdsimConfig contains all crowdsim configuration settings.
type CrowdsimConfig struct {
	// Simulation contains the engine and run parameters.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Storage contains settings for persisting runs, users and contacts.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Render contains settings for GIF, chart and GeoJSON output.
	Render RenderConfig `json:"render" yaml:"render"`

	// Sink contains settings for the asynchronous event sink.
	Sink SinkConfig `json:"sink" yaml:"sink"`

	// Logging contains settings for operational and trace logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures a single run.
type SimulationConfig struct {
	AgentCount int     `json:"agent_count" yaml:"agent_count"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`

	AgentDiameter     float64 `json:"agent_diameter" yaml:"agent_diameter"`
	AttractorDiameter float64 `json:"attractor_diameter" yaml:"attractor_diameter"`

	// ContactDistance is multiplied by Scale to get the contact radius.
	ContactDistance float64 `json:"contact_distance" yaml:"contact_distance"`
	Scale           float64 `json:"scale" yaml:"scale"`

	// Beta is the contamination probability per contact. Range: 0.0 to 1.0
	Beta float64 `json:"beta" yaml:"beta"`

	// RecoveryProbability is the per-tick recovery chance of an infected
	// agent. 0 disables recovery.
	RecoveryProbability float64 `json:"recovery_probability" yaml:"recovery_probability"`

	StepLength float64 `json:"step_length" yaml:"step_length"`

	// Seed makes a run reproducible. 0 picks a time-based seed.
	Seed int64 `json:"seed" yaml:"seed"`

	// Attractor fixes the gathering point. Nil places it at random.
	Attractor *PointConfig `json:"attractor,omitempty" yaml:"attractor,omitempty"`

	// HealthStates lists the initial states with their relative weights.
	// Empty means every state is equally likely.
	HealthStates []HealthStateWeight `json:"health_states,omitempty" yaml:"health_states,omitempty"`

	// MaxTicks stops a run that has not converged.
	MaxTicks int `json:"max_ticks" yaml:"max_ticks"`

	// TickInterval paces the driver. 0 runs ticks back to back.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
}

// PointConfig is a 2D coordinate.
type PointConfig struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// HealthStateWeight is one entry of the initial state distribution.
// State accepts labels or colours: susceptible/green, infected/red,
// recovered/orange.
type HealthStateWeight struct {
	State  string  `json:"state" yaml:"state"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path is the database file. Empty uses <root>/.crowdsim/crowdsim.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// RenderConfig configures optional render outputs. Empty paths disable
// the matching output.
type RenderConfig struct {
	GIFPath     string `json:"gif_path,omitempty" yaml:"gif_path,omitempty"`
	ChartPath   string `json:"chart_path,omitempty" yaml:"chart_path,omitempty"`
	GeoJSONPath string `json:"geojson_path,omitempty" yaml:"geojson_path,omitempty"`
	FrameEvery  int    `json:"frame_every" yaml:"frame_every"`
	CanvasSize  int    `json:"canvas_size" yaml:"canvas_size"`
}

// SinkConfig configures the asynchronous event sink.
type SinkConfig struct {
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// LoggingConfig configures crowdsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables trace logging to .crowdsim/trace.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a CrowdsimConfig with sensible defaults.
func Default() *CrowdsimConfig {
	return &CrowdsimConfig{
		Simulation: SimulationConfig{
			AgentCount:        constants.DefaultAgentCount,
			Width:             constants.DefaultWindowWidth,
			Height:            constants.DefaultWindowHeight,
			AgentDiameter:     constants.DefaultAgentDiameter,
			AttractorDiameter: constants.DefaultAttractorDiameter,
			ContactDistance:   constants.DefaultContactDistance,
			Scale:             constants.DefaultScale,
			Beta:              constants.DefaultBeta,
			StepLength:        constants.DefaultStepLength,
			MaxTicks:          constants.DefaultMaxTicks,
		},
		Storage: StorageConfig{
			Enabled: true,
		},
		Render: RenderConfig{
			FrameEvery: constants.DefaultFrameEvery,
			CanvasSize: constants.DefaultCanvasSize,
		},
		Sink: SinkConfig{
			BufferSize: constants.DefaultSinkBuffer,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.crowdsim/config.yaml -> environment variables
func Load() (*CrowdsimConfig, error) {
	config := Default()

	path, err := DefaultPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// DefaultPath returns ~/.crowdsim/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName, constants.ConfigFileName), nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*CrowdsimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Storage.Path = expandEnvVars(config.Storage.Path)

	return config, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func Save(config *CrowdsimConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
// Geometric consistency (diameters against the window, attractor placement)
// is checked again by the engine at initialization.
func (c *CrowdsimConfig) Validate() error {
	s := c.Simulation
	if s.AgentCount < 0 {
		return fmt.Errorf("agent_count must be non-negative, got %d", s.AgentCount)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("width and height must be positive, got %vx%v", s.Width, s.Height)
	}
	if s.AgentDiameter >= s.Width || s.AgentDiameter >= s.Height {
		return fmt.Errorf("agent_diameter %v must be smaller than the window", s.AgentDiameter)
	}
	if s.AttractorDiameter >= s.Width || s.AttractorDiameter >= s.Height {
		return fmt.Errorf("attractor_diameter %v must be smaller than the window", s.AttractorDiameter)
	}
	if s.Beta < 0 || s.Beta > 1 {
		return fmt.Errorf("beta must be between 0 and 1, got %f", s.Beta)
	}
	if s.RecoveryProbability < 0 || s.RecoveryProbability > 1 {
		return fmt.Errorf("recovery_probability must be between 0 and 1, got %f", s.RecoveryProbability)
	}
	if s.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %f", s.Scale)
	}
	if s.StepLength <= 0 {
		return fmt.Errorf("step_length must be positive, got %f", s.StepLength)
	}
	if s.MaxTicks < 0 {
		return fmt.Errorf("max_ticks must be non-negative, got %d", s.MaxTicks)
	}
	if s.TickInterval < 0 {
		return fmt.Errorf("tick_interval must be non-negative, got %v", s.TickInterval)
	}
	if _, err := c.StateWeights(); err != nil {
		return err
	}

	if c.Render.FrameEvery < 0 {
		return fmt.Errorf("render.frame_every must be non-negative, got %d", c.Render.FrameEvery)
	}
	if c.Sink.BufferSize < 0 {
		return fmt.Errorf("sink.buffer_size must be non-negative, got %d", c.Sink.BufferSize)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// EngineParams converts the simulation section to engine parameters.
func (c *CrowdsimConfig) EngineParams() epidemic.Params {
	s := c.Simulation
	return epidemic.Params{
		Bounds:              orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{s.Width, s.Height}},
		AgentDiameter:       s.AgentDiameter,
		AttractorDiameter:   s.AttractorDiameter,
		ContactDistance:     s.ContactDistance,
		Scale:               s.Scale,
		Beta:                s.Beta,
		RecoveryProbability: s.RecoveryProbability,
		StepLength:          s.StepLength,
	}
}

// StateWeights parses the configured initial health-state distribution.
// An empty list returns nil, which the policy treats as uniform.
func (c *CrowdsimConfig) StateWeights() ([]epidemic.StateWeight, error) {
	if len(c.Simulation.HealthStates) == 0 {
		return nil, nil
	}
	out := make([]epidemic.StateWeight, 0, len(c.Simulation.HealthStates))
	var total float64
	for _, hs := range c.Simulation.HealthStates {
		state, err := epidemic.ParseHealthState(hs.State)
		if err != nil {
			return nil, fmt.Errorf("health_states: %w", err)
		}
		if hs.Weight < 0 {
			return nil, fmt.Errorf("health_states: weight for %s must be non-negative, got %f", hs.State, hs.Weight)
		}
		total += hs.Weight
		out = append(out, epidemic.StateWeight{State: state, Weight: hs.Weight})
	}
	if total <= 0 {
		return nil, fmt.Errorf("health_states: weights must not all be zero")
	}
	return out, nil
}

// AttractorPoint returns the configured attractor, if any.
func (c *CrowdsimConfig) AttractorPoint() (orb.Point, bool) {
	if c.Simulation.Attractor == nil {
		return orb.Point{}, false
	}
	return orb.Point{c.Simulation.Attractor.X, c.Simulation.Attractor.Y}, true
}

// DatabasePath resolves the store location relative to root.
func (c *CrowdsimConfig) DatabasePath(root string) string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(root, constants.DirName, constants.DatabaseFileName)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *CrowdsimConfig) {
	if v := os.Getenv("CROWDSIM_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.AgentCount = n
		}
	}

	if v := os.Getenv("CROWDSIM_BETA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.Beta = f
		}
	}

	if v := os.Getenv("CROWDSIM_CONTACT_DISTANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Simulation.ContactDistance = f
		}
	}

	if v := os.Getenv("CROWDSIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv("CROWDSIM_STORAGE_ENABLED"); v != "" {
		config.Storage.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("CROWDSIM_DB_PATH"); v != "" {
		config.Storage.Path = v
	}

	if v := os.Getenv("CROWDSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
