// Package config loads the server configuration from a JSON or YAML
// file, chosen by extension, and fills in defaults for anything the
// file leaves out.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Paths  Paths  `json:"paths" yaml:"paths"`
	Server Server `json:"server" yaml:"server"`
	Watch  Watch  `json:"watch" yaml:"watch"`
}

// Paths locates the repository and the staging area on disk.
type Paths struct {
	// Repository is the working directory of the git-backed store.
	Repository string `json:"repository" yaml:"repository"`
	// InventoryFile is the tracked document file, relative to Repository.
	InventoryFile string `json:"inventory_file" yaml:"inventory_file"`
	// Patches is where per-author staged operations are persisted.
	Patches string `json:"patches" yaml:"patches"`
}

// Server configures the HTTP listener and its route table.
type Server struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	StaticDir string `json:"static_dir" yaml:"static_dir"`
	Routes    Routes `json:"routes" yaml:"routes"`
}

// Routes maps every endpoint to its path. Keeping the table in the
// configuration lets deployments move the API under a prefix without
// touching code.
type Routes struct {
	Patch     string `json:"patch" yaml:"patch"`
	Commit    string `json:"commit" yaml:"commit"`
	Discard   string `json:"discard" yaml:"discard"`
	Log       string `json:"log" yaml:"log"`
	Head      string `json:"head" yaml:"head"`
	State     string `json:"state" yaml:"state"`
	Subscribe string `json:"subscribe" yaml:"subscribe"`
	App       string `json:"app" yaml:"app"`
}

// Watch configures the filesystem watcher that picks up commits made
// outside the server (e.g. a manual git pull in the repository).
type Watch struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Paths: Paths{
			Repository:    "inventory",
			InventoryFile: "inventory.json",
			Patches:       "patches",
		},
		Server: Server{
			Host:      "",
			Port:      8000,
			StaticDir: "",
			Routes: Routes{
				Patch:     "/inventory/patch",
				Commit:    "/inventory/commit",
				Discard:   "/inventory/discard",
				Log:       "/inventory/log",
				Head:      "/inventory/head",
				State:     "/inventory/state",
				Subscribe: "/inventory/subscribe",
				App:       "/app/",
			},
		},
		Watch: Watch{
			Enabled: true,
			Pattern: "*.json",
		},
	}
}

// Load reads the file at path and merges it over the defaults. The
// format is chosen by extension: .json, .yaml or .yml.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q (want .json, .yaml or .yml)", ext)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the parts a typo would otherwise surface as a
// confusing runtime failure.
func (c Config) Validate() error {
	if c.Paths.Repository == "" {
		return fmt.Errorf("paths.repository must not be empty")
	}
	if c.Paths.InventoryFile == "" {
		return fmt.Errorf("paths.inventory_file must not be empty")
	}
	if filepath.IsAbs(c.Paths.InventoryFile) {
		return fmt.Errorf("paths.inventory_file must be relative to the repository")
	}
	if c.Paths.Patches == "" {
		return fmt.Errorf("paths.patches must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for name, route := range map[string]string{
		"patch":     c.Server.Routes.Patch,
		"commit":    c.Server.Routes.Commit,
		"discard":   c.Server.Routes.Discard,
		"log":       c.Server.Routes.Log,
		"head":      c.Server.Routes.Head,
		"state":     c.Server.Routes.State,
		"subscribe": c.Server.Routes.Subscribe,
		"app":       c.Server.Routes.App,
	} {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("server.routes.%s %q must start with /", name, route)
		}
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
