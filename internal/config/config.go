package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/trisync/internal/domain"
)

// Config is the full TOML configuration of one trisync process.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Stores  StoresConfig  `toml:"stores"`
	Server  ServerConfig  `toml:"server"`
	Fanout  FanoutConfig  `toml:"fanout"`
	Sync    SyncConfig    `toml:"sync"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// StoresConfig holds one connection per logical store.
type StoresConfig struct {
	Employee StoreConfig `toml:"employee"`
	Intern   StoreConfig `toml:"intern"`
	Admin    StoreConfig `toml:"admin"`
}

type StoreConfig struct {
	DSN string `toml:"dsn"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

type FanoutConfig struct {
	IDSource            string `toml:"id_source"` // uuid | store
	DefaultAssigneeRole string `toml:"default_assignee_role"`
	PlaceholderDomain   string `toml:"placeholder_domain"`
}

type SyncConfig struct {
	Targets        []string `toml:"targets"`
	Collections    []string `toml:"collections"`
	IgnoreFields   []string `toml:"ignore_fields"`
	WebhookTargets []string `toml:"webhook_targets"`
}

// Default returns defaults with one sqlite database per store under dataDir.
func Default(dataDir string) Config {
	return Config{
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".trisync/log",
			},
		},
		Stores: StoresConfig{
			Employee: StoreConfig{DSN: StorePath(dataDir, domain.StoreEmployee)},
			Intern:   StoreConfig{DSN: StorePath(dataDir, domain.StoreIntern)},
			Admin:    StoreConfig{DSN: StorePath(dataDir, domain.StoreAdmin)},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
		Fanout: FanoutConfig{
			IDSource:            "uuid",
			DefaultAssigneeRole: string(domain.RoleEmployee),
			PlaceholderDomain:   "placeholder",
		},
		Sync: SyncConfig{
			Targets:        []string{string(domain.StoreEmployee), string(domain.StoreIntern)},
			Collections:    domain.MasterCollections(),
			IgnoreFields:   []string{"updatedAt", "lastLoginAt"},
			WebhookTargets: []string{string(domain.StoreEmployee), string(domain.StoreIntern)},
		},
	}
}

// StorePath returns the default sqlite path of one store under dataDir.
func StorePath(dataDir string, store domain.StoreName) string {
	return filepath.Join(dataDir, string(store)+".db")
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}

	for _, name := range domain.KnownStores() {
		if strings.TrimSpace(c.StoreDSN(name)) == "" {
			return fmt.Errorf("stores.%s.dsn is required", name)
		}
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for key, endpoint := range map[string]string{"api_endpoint": c.Server.APIEndpoint, "mcp_endpoint": c.Server.MCPEndpoint} {
		if !strings.HasPrefix(strings.TrimSpace(endpoint), "/") {
			return fmt.Errorf("server.%s must start with /: %q", key, endpoint)
		}
	}

	switch strings.TrimSpace(strings.ToLower(c.Fanout.IDSource)) {
	case "uuid", "store":
	default:
		return fmt.Errorf("invalid fanout.id_source: %q", c.Fanout.IDSource)
	}
	if _, err := domain.ParseRole(c.Fanout.DefaultAssigneeRole); err != nil {
		return fmt.Errorf("invalid fanout.default_assignee_role: %q", c.Fanout.DefaultAssigneeRole)
	}

	if len(c.Sync.Targets) == 0 {
		return errors.New("sync.targets must include at least one store")
	}
	if err := validateTargets("sync.targets", c.Sync.Targets); err != nil {
		return err
	}
	if err := validateTargets("sync.webhook_targets", c.Sync.WebhookTargets); err != nil {
		return err
	}
	targets := make([]domain.StoreName, 0, len(c.Sync.Targets))
	for _, raw := range c.Sync.Targets {
		name, _ := domain.ParseStoreName(raw)
		targets = append(targets, name)
	}
	for i, raw := range c.Sync.WebhookTargets {
		name, _ := domain.ParseStoreName(raw)
		if !slices.Contains(targets, name) {
			return fmt.Errorf("sync.webhook_targets[%d] %q is not in sync.targets", i, raw)
		}
	}
	for i, collection := range c.Sync.Collections {
		if !domain.IsMasterCollection(strings.TrimSpace(collection)) {
			return fmt.Errorf("sync.collections[%d] references unknown collection %q", i, collection)
		}
	}
	return nil
}

// StoreDSN returns the configured DSN of one logical store.
func (c Config) StoreDSN(name domain.StoreName) string {
	switch name {
	case domain.StoreEmployee:
		return c.Stores.Employee.DSN
	case domain.StoreIntern:
		return c.Stores.Intern.DSN
	case domain.StoreAdmin:
		return c.Stores.Admin.DSN
	default:
		return ""
	}
}

// validateTargets checks that every entry names a dependent store.
func validateTargets(key string, targets []string) error {
	for i, raw := range targets {
		name, err := domain.ParseStoreName(raw)
		if err != nil {
			return fmt.Errorf("%s[%d] references unknown store %q", key, i, raw)
		}
		if name == domain.StoreAdmin {
			return fmt.Errorf("%s[%d] cannot be the authoritative admin store", key, i)
		}
	}
	return nil
}

// EnsureConfigDir creates the parent directory of a config path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
