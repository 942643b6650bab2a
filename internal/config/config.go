package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	defaultOrganization   = "NIBM-Workshops"
	defaultRawContentURL  = "https://raw.githubusercontent.com"
	defaultFetchTimeout   = 10 * time.Second
	defaultBatchTimeout   = 60 * time.Second
	defaultMaxConcurrency = 8
	defaultServiceName    = "workshops"
)

type Config struct{ v *viper.Viper }

func New() *Config {
	vv := viper.New()
	vv.AutomaticEnv()
	return &Config{v: vv}
}

// Load reads an optional configuration file. Keys in the file use the same
// names as the environment variables; environment values take precedence.
func (c *Config) Load(path string) error {
	if path == "" {
		return nil
	}
	c.v.SetConfigFile(path)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	slog.Debug("config file loaded", "path", path)
	return nil
}

// GetDsn resolves the final DSN using env vars
func (c *Config) GetDsn() (*url.URL, error) {
	source := c.v.GetString("DSN")
	if source == "" {
		user := c.v.GetString("PGUSER")
		if user == "" {
			user = c.v.GetString("USER")
		}
		if user == "" {
			user = "postgres"
		}

		dbName := c.v.GetString("PGDATABASE")
		if dbName == "" {
			dbName = "workshops"
		}

		host := c.v.GetString("PGHOST")
		if host == "" {
			host = "localhost"
		}

		port := c.v.GetString("PGPORT")
		hasPortEnv := port != ""
		if !hasPortEnv {
			port = "5432"
		}

		if strings.HasPrefix(host, "/") {
			socketDir := host

			// PGHOST may name the socket file itself (".s.PGSQL.<port>").
			if fi, err := os.Stat(host); err == nil && !fi.IsDir() {
				socketDir = filepath.Dir(host)
				if !hasPortEnv {
					base := filepath.Base(host)
					if inferred, ok := strings.CutPrefix(base, ".s.PGSQL."); ok && inferred != "" {
						if _, err := strconv.Atoi(inferred); err == nil {
							port = inferred
						}
					}
				}
			}

			q := url.Values{}
			q.Set("host", socketDir)
			q.Set("port", port)
			q.Set("sslmode", "disable")
			source = "postgres://" + user + "@/" + dbName + "?" + q.Encode()
		} else {
			source = "postgres://" + user + "@" + host + ":" + port + "/" + dbName + "?sslmode=disable"
		}
	}

	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		return nil, errors.New("invalid DSN: must be in format driver://dataSourceName")
	}
	return u, nil
}

// HasDatabase reports whether a database was configured explicitly, either
// with DSN or with PGHOST.
func (c *Config) HasDatabase() bool {
	return c.v.GetString("DSN") != "" || c.v.GetString("PGHOST") != ""
}

func (c *Config) GetGitHubToken() string {
	if t := c.v.GetString("GITHUB_TOKEN"); t != "" {
		return t
	}
	return c.v.GetString("GH_TOKEN")
}

// GetOrganization returns the organization whose repositories are listed.
func (c *Config) GetOrganization() string {
	if org := c.v.GetString("GITHUB_ORG"); org != "" {
		return org
	}
	return defaultOrganization
}

// GetGitHubAPIURL returns the REST API endpoint override, empty for github.com.
func (c *Config) GetGitHubAPIURL() string { return c.v.GetString("GITHUB_API_URL") }

// GetRawContentURL returns the host serving raw repository files.
func (c *Config) GetRawContentURL() string {
	if u := c.v.GetString("RAW_CONTENT_URL"); u != "" {
		return u
	}
	return defaultRawContentURL
}

// GetFallbackRepos returns the comma-separated FALLBACK_REPOS list, or nil
// when unset.
func (c *Config) GetFallbackRepos() []string {
	var out []string
	for _, r := range strings.Split(c.v.GetString("FALLBACK_REPOS"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (c *Config) GetAddr() string {
	port := c.v.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	host := c.v.GetString("HOST")
	if host == "" {
		host = "localhost"
	}
	return host + ":" + port
}

// GetFetchTimeout bounds a single README fetch. Reads FETCH_TIMEOUT; defaults to 10s.
func (c *Config) GetFetchTimeout() time.Duration {
	return c.getDuration("FETCH_TIMEOUT", defaultFetchTimeout)
}

// GetBatchTimeout bounds a whole assembly. Reads BATCH_TIMEOUT; defaults to 60s.
func (c *Config) GetBatchTimeout() time.Duration {
	return c.getDuration("BATCH_TIMEOUT", defaultBatchTimeout)
}

// GetMaxConcurrency returns the number of READMEs fetched in parallel.
func (c *Config) GetMaxConcurrency() int {
	if n := c.v.GetInt("MAX_CONCURRENCY"); n > 0 {
		return n
	}
	return defaultMaxConcurrency
}

// GetRefreshSchedule returns the cron expression used by the server to
// re-assemble the catalog. Empty disables scheduled refreshes.
func (c *Config) GetRefreshSchedule() string { return c.v.GetString("REFRESH_SCHEDULE") }

// GetServiceName returns OTEL_SERVICE_NAME, defaulting to "workshops".
func (c *Config) GetServiceName() string {
	if name := c.v.GetString("OTEL_SERVICE_NAME"); name != "" {
		return name
	}
	return defaultServiceName
}

// TelemetryEnabled reports whether an OTLP endpoint is configured.
func (c *Config) TelemetryEnabled() bool {
	return c.v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
		c.v.GetString("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") != ""
}

func (c *Config) getDuration(key string, def time.Duration) time.Duration {
	if v := c.v.GetString(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", v, "default", def)
	}
	return def
}

func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// GetLogLevel returns the log level from env var LOG_LEVEL mapped to slog.Level.
// Recognized values: debug, info (default), warn|warning, error.
func (c *Config) GetLogLevel() slog.Level {
	switch strings.ToLower(c.v.GetString("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// OnLogLevelChange calls fn with the slog.Level whenever it changes.
// The initial call is made immediately.
func (c *Config) OnLogLevelChange(fn func(slog.Level)) {
	apply := func() { fn(c.GetLogLevel()) }
	apply()
	c.v.OnConfigChange(func(e fsnotify.Event) {
		slog.Info("config file changed", "path", e.Name, "op", e.Op.String())
		apply()
	})
}

// Watch reloads the config file on change. It is a no-op when no file
// was loaded.
func (c *Config) Watch() {
	if c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.WatchConfig()
}
