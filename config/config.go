package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hapershtein/llamagent/errors"
)

const (
	DefaultProvider      = "ollama"
	DefaultModel         = "qwen2.5:7b"
	DefaultBaseURL       = "http://localhost:11434"
	DefaultMaxIterations = 20
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Config struct {
	Provider             string           `yaml:"provider"`
	Model                string           `yaml:"model"`
	BaseURL              string           `yaml:"base_url"`
	MaxIterations        int              `yaml:"max_iterations"`
	SystemPrompt         string           `yaml:"system_prompt"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Provider:      DefaultProvider,
		Model:         DefaultModel,
		BaseURL:       DefaultBaseURL,
		MaxIterations: DefaultMaxIterations,
	}

	// The agent's own state directory is never exposed to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, ".llamagent", ".llamagent/**")

	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".llamagent", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".llamagent", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	if baseURL := os.Getenv("OLLAMA_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, which gives a simple
	// merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// SaveDefaultModel persists the last used model into the user-level config
// so the next run picks it up.
func SaveDefaultModel(model string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return errors.Wrapf(err, "could not resolve home directory")
	}
	dir := filepath.Join(home, ".llamagent")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "could not create config directory")
	}
	path := filepath.Join(dir, "config.yaml")

	cfg := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		// Ignore parse failures here; a corrupt config should not block exit.
		_ = yaml.Unmarshal(data, &cfg)
	}
	cfg["model"] = model

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrapf(err, "could not serialize config")
	}
	return os.WriteFile(path, data, 0644)
}

// GetToolset finds a toolset by name. When no toolsets are configured, or
// the empty name is given, a nil Toolset is returned, meaning "all
// registered tools".
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" || name == "default" {
		for _, ts := range c.Toolsets {
			if ts.Name == "default" {
				return &ts, nil
			}
		}
		return nil, nil
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	return nil, errors.New("toolset '%s' not found in configuration", name)
}
