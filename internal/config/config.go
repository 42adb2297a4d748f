// Package config provides environment-driven configuration for ployer,
// generalizing the teacher's YAML-file-plus-defaults shape (internal/config
// in base-go-basepod) into the env-var surface spec.md §6 specifies.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the full runtime configuration for the ployer daemon.
type Config struct {
	PublicURL      string
	BindHost       string
	BindPort       int
	BaseDomain     string
	DBPath         string
	SecretKey      string
	TokenExpiryHrs int
	EngineSocket   string
	ProxyAdminURL  string
	AllowedOrigins []string
	BuildsRoot     string
}

// Paths mirrors the teacher's Paths helper: the set of directories ployer
// needs on disk, all rooted under a single base directory.
type Paths struct {
	Base   string
	Data   string
	Builds string
	Logs   string
}

// Load reads configuration from the environment, applying the development
// defaults spec.md §6 calls for. The secret key default is intentionally
// weak and must be overridden in production (PLOYER_SECRET_KEY).
func Load() (*Config, error) {
	cfg := &Config{
		PublicURL:      getEnv("PLOYER_PUBLIC_URL", "http://localhost:8080"),
		BindHost:       getEnv("PLOYER_BIND_HOST", "0.0.0.0"),
		BindPort:       getEnvInt("PLOYER_BIND_PORT", 8080),
		BaseDomain:     getEnv("PLOYER_BASE_DOMAIN", "ployer.local"),
		DBPath:         getEnv("PLOYER_DB_PATH", "data/ployer.db"),
		SecretKey:      getEnv("PLOYER_SECRET_KEY", "dev-insecure-secret-change-me"),
		TokenExpiryHrs: getEnvInt("PLOYER_TOKEN_EXPIRY_HOURS", 24),
		EngineSocket:   getEnv("PLOYER_ENGINE_SOCKET", defaultEngineSocket()),
		ProxyAdminURL:  getEnv("PLOYER_PROXY_ADMIN_URL", "http://localhost:2019"),
		AllowedOrigins: splitCSV(getEnv("PLOYER_ALLOWED_ORIGINS", "*")),
		BuildsRoot:     getEnv("PLOYER_BUILDS_ROOT", "data/builds"),
	}

	return cfg, nil
}

// IsSecretKeyDefault reports whether the secret key is still the
// development placeholder; callers use this to warn loudly at startup.
func (c *Config) IsSecretKeyDefault() bool {
	return c.SecretKey == "dev-insecure-secret-change-me"
}

// GetPaths resolves the directories ployer needs, rooted at base (defaults
// to the process's working directory via relative paths, matching the
// teacher's Data/Logs/Apps layout under ~/.basepod).
func GetPaths(cfg *Config) Paths {
	data := filepath.Dir(cfg.DBPath)
	if data == "." || data == "" {
		data = "data"
	}
	return Paths{
		Base:   ".",
		Data:   data,
		Builds: cfg.BuildsRoot,
		Logs:   filepath.Join(data, "logs"),
	}
}

// EnsureDirectories creates every directory Paths names.
func EnsureDirectories(p Paths) error {
	for _, dir := range []string{p.Data, p.Builds, p.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultEngineSocket() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return filepath.Join(xdg, "podman", "podman.sock")
	}
	return "/var/run/docker.sock"
}
