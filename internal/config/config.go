package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultSettings is the baseline settings file, printed by
// "planes -dump-settings" and used when no config file is given.
const DefaultSettings = `[world]
width = 1000.0
height = 1000.0
duration_ticks = 600
seed = 1

[planes]
count = 8
speed = 4.0
communication_range = 300.0

[operators]
count = 2
communication_range = 400.0

[tasks]
count = 40

[maxsum]
iterations = 50
damping = 0.0
cost_policy = "independent"
workload_k = 1.0
workload_alpha = 1.5

[store]
db_path = "data/planes.db"
`

type Config struct {
	World     WorldConfig     `toml:"world"`
	Planes    PlanesConfig    `toml:"planes"`
	Operators OperatorsConfig `toml:"operators"`
	Tasks     TasksConfig     `toml:"tasks"`
	MaxSum    MaxSumConfig    `toml:"maxsum"`
	Store     StoreConfig     `toml:"store"`
	Path      string          `toml:"-"`
}

type WorldConfig struct {
	Width         float64 `toml:"width"`
	Height        float64 `toml:"height"`
	DurationTicks int     `toml:"duration_ticks"`
	Seed          int64   `toml:"seed"`
}

type PlanesConfig struct {
	Count     int     `toml:"count"`
	Speed     float64 `toml:"speed"`
	CommRange float64 `toml:"communication_range"`
}

type OperatorsConfig struct {
	Count     int     `toml:"count"`
	CommRange float64 `toml:"communication_range"`
}

type TasksConfig struct {
	Count int `toml:"count"`
}

type MaxSumConfig struct {
	Iterations    int     `toml:"iterations"`
	Damping       float64 `toml:"damping"`
	CostPolicy    string  `toml:"cost_policy"`
	WorkloadK     float64 `toml:"workload_k"`
	WorkloadAlpha float64 `toml:"workload_alpha"`
}

type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

// Load reads the settings file at path, or the built-in defaults when path is
// empty. The result still needs WithDefaults and Validate before use.
func Load(path string) (Config, error) {
	if path == "" {
		var cfg Config
		if _, err := toml.Decode(DefaultSettings, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode default settings: %w", err)
		}
		return cfg, nil
	}

	resolved := path
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}
	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved
	return cfg, nil
}

func (c Config) WithDefaults() Config {
	if c.World.Width <= 0 {
		c.World.Width = 1000
	}
	if c.World.Height <= 0 {
		c.World.Height = 1000
	}
	if c.World.DurationTicks <= 0 {
		c.World.DurationTicks = 600
	}
	if c.World.Seed == 0 {
		c.World.Seed = 1
	}
	if c.Planes.Count <= 0 {
		c.Planes.Count = 8
	}
	if c.Planes.Speed <= 0 {
		c.Planes.Speed = 4
	}
	if c.Planes.CommRange <= 0 {
		c.Planes.CommRange = 300
	}
	if c.Operators.Count <= 0 {
		c.Operators.Count = 2
	}
	if c.Operators.CommRange <= 0 {
		c.Operators.CommRange = 400
	}
	if c.Tasks.Count <= 0 {
		c.Tasks.Count = 40
	}
	if c.MaxSum.Iterations <= 0 {
		c.MaxSum.Iterations = 50
	}
	if c.MaxSum.CostPolicy == "" {
		c.MaxSum.CostPolicy = "independent"
	}
	if c.MaxSum.WorkloadK <= 0 {
		c.MaxSum.WorkloadK = 1
	}
	if c.MaxSum.WorkloadAlpha <= 0 {
		c.MaxSum.WorkloadAlpha = 1.5
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = "data/planes.db"
	}
	return c
}

// Validate reports the fatal configuration errors: a run must not start with
// any of these.
func (c Config) Validate() error {
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world dimensions must be positive, got %gx%g", c.World.Width, c.World.Height)
	}
	if c.World.DurationTicks <= 0 {
		return fmt.Errorf("world duration_ticks must be positive, got %d", c.World.DurationTicks)
	}
	if c.Planes.Count <= 0 {
		return fmt.Errorf("planes count must be positive, got %d", c.Planes.Count)
	}
	if c.Planes.Speed <= 0 {
		return fmt.Errorf("planes speed must be positive, got %g", c.Planes.Speed)
	}
	if c.Planes.CommRange <= 0 {
		return fmt.Errorf("planes communication_range must be positive, got %g", c.Planes.CommRange)
	}
	if c.Operators.Count <= 0 {
		return fmt.Errorf("operators count must be positive, got %d", c.Operators.Count)
	}
	if c.Operators.CommRange <= 0 {
		return fmt.Errorf("operators communication_range must be positive, got %g", c.Operators.CommRange)
	}
	if c.Tasks.Count <= 0 {
		return fmt.Errorf("tasks count must be positive, got %d", c.Tasks.Count)
	}
	if c.MaxSum.Iterations <= 0 {
		return fmt.Errorf("maxsum iterations must be positive, got %d", c.MaxSum.Iterations)
	}
	if c.MaxSum.Damping < 0 || c.MaxSum.Damping >= 1 {
		return fmt.Errorf("maxsum damping must be in [0,1), got %g", c.MaxSum.Damping)
	}
	switch c.MaxSum.CostPolicy {
	case "independent", "workload":
	default:
		return fmt.Errorf("unknown maxsum cost_policy %q (want independent or workload)", c.MaxSum.CostPolicy)
	}
	if c.MaxSum.CostPolicy == "workload" {
		if c.MaxSum.WorkloadK <= 0 {
			return fmt.Errorf("maxsum workload_k must be positive, got %g", c.MaxSum.WorkloadK)
		}
		if c.MaxSum.WorkloadAlpha <= 0 {
			return fmt.Errorf("maxsum workload_alpha must be positive, got %g", c.MaxSum.WorkloadAlpha)
		}
	}
	return nil
}

// ApplyOverride sets a single dotted setting, e.g. "maxsum.iterations=100".
// This backs the -o command line flag.
func (c *Config) ApplyOverride(key, value string) error {
	var err error
	switch key {
	case "world.width":
		c.World.Width, err = parseFloat(value)
	case "world.height":
		c.World.Height, err = parseFloat(value)
	case "world.duration_ticks":
		c.World.DurationTicks, err = parseInt(value)
	case "world.seed":
		c.World.Seed, err = strconv.ParseInt(value, 10, 64)
	case "planes.count":
		c.Planes.Count, err = parseInt(value)
	case "planes.speed":
		c.Planes.Speed, err = parseFloat(value)
	case "planes.communication_range":
		c.Planes.CommRange, err = parseFloat(value)
	case "operators.count":
		c.Operators.Count, err = parseInt(value)
	case "operators.communication_range":
		c.Operators.CommRange, err = parseFloat(value)
	case "tasks.count":
		c.Tasks.Count, err = parseInt(value)
	case "maxsum.iterations":
		c.MaxSum.Iterations, err = parseInt(value)
	case "maxsum.damping":
		c.MaxSum.Damping, err = parseFloat(value)
	case "maxsum.cost_policy":
		c.MaxSum.CostPolicy = value
	case "maxsum.workload_k":
		c.MaxSum.WorkloadK, err = parseFloat(value)
	case "maxsum.workload_alpha":
		c.MaxSum.WorkloadAlpha, err = parseFloat(value)
	case "store.db_path":
		c.Store.DBPath = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

func parseInt(v string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(v))
}

func parseFloat(v string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}
