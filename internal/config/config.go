package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Executor kinds a solver may run under.
const (
	ExecutorLocal     = "local"
	ExecutorContainer = "container"
)

type Config struct {
	Solvers []Solver `yaml:"solvers"`
}

// Solver describes one external code and how to drive it. Command fields are
// text/template strings rendered against the solver options and the model inputs.
type Solver struct {
	Name             string            `yaml:"name"`
	Executor         string            `yaml:"executor"`
	Image            string            `yaml:"image"`
	CommandPre       string            `yaml:"command_pre"`
	CommandRun       string            `yaml:"command_run"`
	CommandPost      string            `yaml:"command_post"`
	CompletionFile   string            `yaml:"completion_file"`
	Attach           []string          `yaml:"attach"`
	Options          map[string]string `yaml:"options"`
	Env              map[string]string `yaml:"env"`
	TimeLimitMinutes int               `yaml:"time_limit_minutes"`
	// CPUs and MemoryMB cap container runs.
	CPUs     float64 `yaml:"cpus"`
	MemoryMB int64   `yaml:"memory_mb"`
	// Hooks selects built-in input writers and output collectors. Defaults
	// to the solver name.
	Hooks string `yaml:"hooks"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Solver returns the named solver.
func (c *Config) Solver(name string) (*Solver, error) {
	for i := range c.Solvers {
		if c.Solvers[i].Name == name {
			return &c.Solvers[i], nil
		}
	}
	return nil, fmt.Errorf("solver %q not configured (available: %v)", name, c.SolverNames())
}

func (c *Config) SolverNames() []string {
	names := make([]string, 0, len(c.Solvers))
	for _, s := range c.Solvers {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

func validate(cfg *Config) error {
	if len(cfg.Solvers) == 0 {
		return fmt.Errorf("no solvers defined")
	}
	seen := make(map[string]bool, len(cfg.Solvers))
	for i := range cfg.Solvers {
		s := &cfg.Solvers[i]
		if s.Name == "" {
			return fmt.Errorf("solver %d: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("solver %q: defined twice", s.Name)
		}
		seen[s.Name] = true
		if s.CommandRun == "" {
			return fmt.Errorf("solver %q: command_run is required", s.Name)
		}
		if s.Executor == "" {
			s.Executor = ExecutorLocal
		}
		switch s.Executor {
		case ExecutorLocal:
		case ExecutorContainer:
			if s.Image == "" {
				return fmt.Errorf("solver %q: image is required for the container executor", s.Name)
			}
		default:
			return fmt.Errorf("solver %q: executor %q does not exist (available: %s, %s)",
				s.Name, s.Executor, ExecutorLocal, ExecutorContainer)
		}
		if s.TimeLimitMinutes < 0 {
			return fmt.Errorf("solver %q: time_limit_minutes must not be negative", s.Name)
		}
		if s.CPUs < 0 || s.MemoryMB < 0 {
			return fmt.Errorf("solver %q: cpus and memory_mb must not be negative", s.Name)
		}
	}
	return nil
}
