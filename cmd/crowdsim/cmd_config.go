package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/crowdsim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage crowdsim configuration",
		Long: `View and modify crowdsim configuration settings.

Configuration is stored in ~/.crowdsim/config.yaml, or in the file named by
--config.

Examples:
  crowdsim config list                          # Show all settings
  crowdsim config list --yaml                   # Show the file as YAML
  crowdsim config get simulation.beta           # Get a specific setting
  crowdsim config set simulation.beta 0.25      # Set a setting
  crowdsim config set simulation.attractor 300,200`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)
	return cmd
}

func newConfigListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			yamlOut, _ := cmd.Flags().GetBool("yaml")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case jsonOut:
				return writeJSON(out, cfg)
			case yamlOut:
				data, err := yaml.Marshal(cfg)
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, err = out.Write(data)
				return err
			}

			path, _ := configPath(cmd)
			fmt.Fprintf(out, "Configuration (%s):\n", path)
			for _, section := range []struct {
				title  string
				prefix string
			}{
				{"Simulation", "simulation."},
				{"Storage", "storage."},
				{"Render", "render."},
				{"Sink", "sink."},
				{"Logging", "logging."},
			} {
				fmt.Fprintf(out, "\n%s:\n", section.title)
				for _, key := range configKeys {
					if !strings.HasPrefix(key, section.prefix) {
						continue
					}
					value, _ := getConfigValue(cfg, key)
					fmt.Fprintf(out, "  %-32s %v\n", key+":", value)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "Print the configuration as YAML")
	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
					"path":   path,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// configPath is --config when given, ~/.crowdsim/config.yaml otherwise.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// configKeys lists the dot-notation keys in display order.
var configKeys = []string{
	"simulation.agent_count",
	"simulation.width",
	"simulation.height",
	"simulation.agent_diameter",
	"simulation.attractor_diameter",
	"simulation.contact_distance",
	"simulation.scale",
	"simulation.beta",
	"simulation.recovery_probability",
	"simulation.step_length",
	"simulation.seed",
	"simulation.attractor",
	"simulation.health_states",
	"simulation.max_ticks",
	"simulation.tick_interval",
	"storage.enabled",
	"storage.path",
	"render.gif_path",
	"render.chart_path",
	"render.geojson_path",
	"render.frame_every",
	"render.canvas_size",
	"sink.buffer_size",
	"logging.level",
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.CrowdsimConfig, key string) (interface{}, bool) {
	s := cfg.Simulation
	switch key {
	case "simulation.agent_count":
		return s.AgentCount, true
	case "simulation.width":
		return s.Width, true
	case "simulation.height":
		return s.Height, true
	case "simulation.agent_diameter":
		return s.AgentDiameter, true
	case "simulation.attractor_diameter":
		return s.AttractorDiameter, true
	case "simulation.contact_distance":
		return s.ContactDistance, true
	case "simulation.scale":
		return s.Scale, true
	case "simulation.beta":
		return s.Beta, true
	case "simulation.recovery_probability":
		return s.RecoveryProbability, true
	case "simulation.step_length":
		return s.StepLength, true
	case "simulation.seed":
		return s.Seed, true
	case "simulation.attractor":
		if s.Attractor == nil {
			return "random", true
		}
		return fmt.Sprintf("%g,%g", s.Attractor.X, s.Attractor.Y), true
	case "simulation.health_states":
		if len(s.HealthStates) == 0 {
			return "uniform", true
		}
		parts := make([]string, len(s.HealthStates))
		for i, hs := range s.HealthStates {
			parts[i] = fmt.Sprintf("%s=%g", hs.State, hs.Weight)
		}
		return strings.Join(parts, ","), true
	case "simulation.max_ticks":
		return s.MaxTicks, true
	case "simulation.tick_interval":
		return s.TickInterval.String(), true
	case "storage.enabled":
		return cfg.Storage.Enabled, true
	case "storage.path":
		return valueOrDefault(cfg.Storage.Path, "(default)"), true
	case "render.gif_path":
		return valueOrDefault(cfg.Render.GIFPath, "(disabled)"), true
	case "render.chart_path":
		return valueOrDefault(cfg.Render.ChartPath, "(disabled)"), true
	case "render.geojson_path":
		return valueOrDefault(cfg.Render.GeoJSONPath, "(disabled)"), true
	case "render.frame_every":
		return cfg.Render.FrameEvery, true
	case "render.canvas_size":
		return cfg.Render.CanvasSize, true
	case "sink.buffer_size":
		return cfg.Sink.BufferSize, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. Range
// checks are left to Validate.
func setConfigValue(cfg *config.CrowdsimConfig, key, value string) error {
	s := &cfg.Simulation
	var err error
	switch key {
	case "simulation.agent_count":
		s.AgentCount, err = parseInt(key, value)
	case "simulation.width":
		s.Width, err = parseFloat(key, value)
	case "simulation.height":
		s.Height, err = parseFloat(key, value)
	case "simulation.agent_diameter":
		s.AgentDiameter, err = parseFloat(key, value)
	case "simulation.attractor_diameter":
		s.AttractorDiameter, err = parseFloat(key, value)
	case "simulation.contact_distance":
		s.ContactDistance, err = parseFloat(key, value)
	case "simulation.scale":
		s.Scale, err = parseFloat(key, value)
	case "simulation.beta":
		s.Beta, err = parseFloat(key, value)
	case "simulation.recovery_probability":
		s.RecoveryProbability, err = parseFloat(key, value)
	case "simulation.step_length":
		s.StepLength, err = parseFloat(key, value)
	case "simulation.seed":
		s.Seed, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			err = fmt.Errorf("invalid %s: %s (must be an integer)", key, value)
		}
	case "simulation.attractor":
		if value == "" || value == "random" {
			s.Attractor = nil
			return nil
		}
		p, perr := parsePoint(value)
		if perr != nil {
			return fmt.Errorf("invalid %s: %w", key, perr)
		}
		s.Attractor = p
	case "simulation.health_states":
		if value == "" || value == "uniform" {
			s.HealthStates = nil
			return nil
		}
		weights, perr := parseStateWeights(strings.Split(value, ","))
		if perr != nil {
			return fmt.Errorf("invalid %s: %w", key, perr)
		}
		s.HealthStates = weights
	case "simulation.max_ticks":
		s.MaxTicks, err = parseInt(key, value)
	case "simulation.tick_interval":
		d, perr := time.ParseDuration(value)
		if perr != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		s.TickInterval = d
	case "storage.enabled":
		cfg.Storage.Enabled = value == "true" || value == "1"
	case "storage.path":
		cfg.Storage.Path = value
	case "render.gif_path":
		cfg.Render.GIFPath = value
	case "render.chart_path":
		cfg.Render.ChartPath = value
	case "render.geojson_path":
		cfg.Render.GeoJSONPath = value
	case "render.frame_every":
		cfg.Render.FrameEvery, err = parseInt(key, value)
	case "render.canvas_size":
		cfg.Render.CanvasSize, err = parseInt(key, value)
	case "sink.buffer_size":
		cfg.Sink.BufferSize, err = parseInt(key, value)
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s (must be an integer)", key, value)
	}
	return n, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s (must be a number)", key, value)
	}
	return f, nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
