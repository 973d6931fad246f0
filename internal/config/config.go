// Package config loads daemon configuration: compiled defaults, then an
// optional YAML file, then VM_ environment overrides, last one wins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log    Log    `koanf:"log"`
	World  World  `koanf:"world"`
	Oracle Oracle `koanf:"oracle"`
	Mind   Mind   `koanf:"mind"`
	Bridge Bridge `koanf:"bridge"`
	Data   Data   `koanf:"data"`
	Mgmt   Mgmt   `koanf:"mgmt"`
	Mirror Mirror `koanf:"mirror"`

	// Agents declared here are created and started at boot.
	Agents []Agent `koanf:"agents"`
}

type Agent struct {
	ID   string `koanf:"id"`
	Name string `koanf:"name"`
	Role string `koanf:"role"`
}

type Log struct {
	Level string `koanf:"level"` // debug, info, quiet
}

type World struct {
	URL string `koanf:"url"`
}

type Oracle struct {
	Provider string `koanf:"provider"` // gemini, ollama, scripted
	Model    string `koanf:"model"`
	Endpoint string `koanf:"endpoint"`
	Key      string `koanf:"key"`
	Retries  int    `koanf:"retries"`
}

// Mind carries the module cadences and memory capacities. Zero values fall
// back to the compiled policy defaults.
type Mind struct {
	Perception    time.Duration `koanf:"perception"`
	Social        time.Duration `koanf:"social"`
	Goalgen       time.Duration `koanf:"goalgen"`
	Awareness     time.Duration `koanf:"awareness"`
	Consolidation time.Duration `koanf:"consolidation"`
	Controller    time.Duration `koanf:"controller"`

	Working int `koanf:"working"`
	Short   int `koanf:"short"`
	Long    int `koanf:"long"`
}

type Bridge struct {
	Tick     time.Duration `koanf:"tick"`
	Steps    int           `koanf:"steps"`
	Boundary float64       `koanf:"boundary"`
	Rejoins  int           `koanf:"rejoins"`
}

type Data struct {
	Dir string `koanf:"dir"`
}

type Mgmt struct {
	Addr string `koanf:"addr"`
}

// Mirror copies sealed journal segments to S3-compatible storage. An empty
// endpoint disables it.
type Mirror struct {
	Endpoint string `koanf:"endpoint"`
	Bucket   string `koanf:"bucket"`
	Key      string `koanf:"key"`
	Secret   string `koanf:"secret"`
	Prefix   string `koanf:"prefix"`
	Workers  int    `koanf:"workers"`
}

// Load reads the file at path (optional) over the defaults, then applies
// VM_ env overrides (VM_ORACLE_MODEL -> oracle.model).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"log.level":          "info",
		"world.url":          "ws://127.0.0.1:8777/v1/ws",
		"oracle.provider":    "scripted",
		"oracle.model":       "",
		"oracle.endpoint":    "http://localhost:11434",
		"oracle.retries":     2,
		"mind.perception":    "500ms",
		"mind.social":        "2s",
		"mind.goalgen":       "7s",
		"mind.awareness":     "500ms",
		"mind.consolidation": "10s",
		"mind.controller":    "5s",
		"mind.working":       5,
		"mind.short":         50,
		"mind.long":          512,
		"bridge.tick":        "1s",
		"bridge.steps":       3,
		"bridge.boundary":    50.0,
		"bridge.rejoins":     1,
		"data.dir":           "./data",
		"mgmt.addr":          ":8710",
		"mirror.workers":     2,
	}
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("VM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "VM_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.World.URL == "" {
		return fmt.Errorf("world.url is required")
	}
	switch c.Oracle.Provider {
	case "gemini", "ollama", "scripted":
	default:
		return fmt.Errorf("unknown oracle.provider %q", c.Oracle.Provider)
	}
	if c.Mind.Working <= 0 || c.Mind.Short <= 0 || c.Mind.Long <= 0 {
		return fmt.Errorf("memory capacities must be positive")
	}
	if c.Bridge.Rejoins < 0 {
		return fmt.Errorf("bridge.rejoins must be >= 0")
	}
	if c.Mirror.Endpoint != "" {
		if c.Mirror.Bucket == "" || c.Mirror.Key == "" || c.Mirror.Secret == "" {
			return fmt.Errorf("mirror: bucket, key and secret are required with an endpoint")
		}
	}
	for i, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
	}
	return nil
}
