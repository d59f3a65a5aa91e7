// Package config loads service configuration from defaults, an optional
// skypass.{toml,yaml} file and SKYPASS_* environment variables.
//
// Invalid values are logged and replaced by their defaults; only settings
// that would leave the service insecure or unusable are errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/skypass/internal/auth"
	"github.com/star/skypass/internal/observability"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/refraction"
	"github.com/star/skypass/internal/schedule"
	"github.com/star/skypass/internal/stream"
	"github.com/star/skypass/internal/transform"
)

// TLE configures catalog fetching and on-disk caching.
type TLE struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

// Station is a named ground station as written in the config file.
type Station struct {
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude"`  // degrees
	Longitude float64 `mapstructure:"longitude"` // degrees
	Altitude  float64 `mapstructure:"altitude"`  // meters
}

// Observer converts s into a transform.Observer.
func (s Station) Observer() transform.Observer {
	return transform.NewObserverDegrees(s.Name, s.Latitude, s.Longitude, s.Altitude)
}

// Config is the complete service configuration.
type Config struct {
	HTTPAddr   string
	LogLevel   slog.Level
	TrustProxy bool

	Auth        auth.Config
	TLE         TLE
	Propagation propagation.PropConfig
	Search      passes.SearchConfig
	Schedule    schedule.Config
	Stream      stream.Config
	Refraction  refraction.Conditions
	Tracing     observability.TracingConfig
	Stations    []Station
}

// New returns a viper instance with the search paths, environment binding
// and defaults installed. file, if set, replaces the search paths.
func New(file string) *viper.Viper {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("skypass")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.skypass")
		v.AddConfigPath("/etc/skypass")
	}

	v.SetEnvPrefix("SKYPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")

	v.SetDefault("tle.enable_fetch", true)
	v.SetDefault("tle.source_url", "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle")
	v.SetDefault("tle.extra_urls", []string{
		"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
	})
	v.SetDefault("tle.cache_dir", "/tmp/skypass/tle")
	v.SetDefault("tle.max_files", 5)
	v.SetDefault("tle.max_age", "24h")

	v.SetDefault("prop.workers", runtime.NumCPU())
	v.SetDefault("prop.step", "5s")
	v.SetDefault("prop.horizon", "10m")

	def := passes.DefaultSearchConfig()
	v.SetDefault("search.precision", def.Precision.String())
	v.SetDefault("search.max_iterations", def.MaxIterations)
	v.SetDefault("search.max_steps", def.MaxSteps)
	v.SetDefault("search.horizon", def.Horizon.String())

	v.SetDefault("schedule.horizon", "24h")
	v.SetDefault("schedule.refresh", "1m")
	v.SetDefault("schedule.buffer", "5m")
	v.SetDefault("schedule.min_elevation", 10.0)
	v.SetDefault("schedule.max_passes", 20)
	v.SetDefault("schedule.max_satellites", 200)
	v.SetDefault("schedule.satellites", []string{})

	v.SetDefault("stream.max_concurrent", 10)
	v.SetDefault("stream.keepalive_interval", "30s")
	v.SetDefault("stream.interval", "1s")

	v.SetDefault("refraction.pressure_kpa", refraction.Standard.PressureKPa)
	v.SetDefault("refraction.temperature_c", refraction.Standard.TemperatureC)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "skypass")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads the config file, if any, and decodes every section.
func Load(v *viper.Viper, logger *slog.Logger) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		logger.Debug("no config file found, using defaults and environment")
	} else {
		logger.Info("config file loaded", "path", v.ConfigFileUsed())
	}

	l := loader{v: v, logger: logger}
	cfg := Config{
		HTTPAddr:   v.GetString("http.addr"),
		LogLevel:   l.level("log.level"),
		TrustProxy: l.boolean("http.trust_proxy", false),
	}

	var err error
	if cfg.Auth, err = l.auth(); err != nil {
		return Config{}, err
	}
	cfg.TLE = l.tle()
	cfg.Propagation = l.propagation()
	cfg.Search = l.search()
	cfg.Schedule = l.schedule()
	cfg.Stream = l.stream()
	cfg.Stream.TrustProxy = cfg.TrustProxy
	cfg.Refraction = refraction.Conditions{
		PressureKPa:  l.float("refraction.pressure_kpa", refraction.Standard.PressureKPa, 1, 120),
		TemperatureC: l.float("refraction.temperature_c", refraction.Standard.TemperatureC, -90, 60),
	}
	cfg.Tracing = l.tracing()
	cfg.Stations = l.stations()

	return cfg, nil
}

// loader decodes individual keys, warning about and replacing bad values.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) warn(key, value string, def any) {
	l.logger.Warn("invalid config value, using default",
		"key", key,
		"env", "SKYPASS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")),
		"value", value,
		"default", def,
	)
}

// positiveInt reads key as an integer of at least 1.
func (l loader) positiveInt(key string, def int) int {
	raw := strings.TrimSpace(l.v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

// duration reads key as a Go duration or a whole number of seconds.
func (l loader) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(l.v.GetString(key))
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	l.warn(key, raw, def.String())
	return def
}

func (l loader) float(key string, def, lo, hi float64) float64 {
	raw := strings.TrimSpace(l.v.GetString(key))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < lo || f > hi {
		l.warn(key, raw, def)
		return def
	}
	return f
}

func (l loader) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(l.v.GetString(key))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		l.warn(key, raw, def)
		return def
	}
	return b
}

func (l loader) level(key string) slog.Level {
	raw := l.v.GetString(key)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.warn(key, raw, "info")
		return slog.LevelInfo
	}
	return lvl
}

// list reads a string list from a config-file array or a comma-separated
// environment value.
func (l loader) list(key string) []string {
	var out []string
	for _, s := range l.v.GetStringSlice(key) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (l loader) auth() (auth.Config, error) {
	raw := strings.TrimSpace(l.v.GetString("auth.enabled"))
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return auth.Config{}, errors.New("SKYPASS_AUTH_ENABLED must be a boolean value (true/false/1/0)")
	}
	cfg := auth.Config{Enabled: enabled}
	if enabled {
		cfg.Token = l.v.GetString("auth.token")
		if cfg.Token == "" {
			return cfg, errors.New("SKYPASS_AUTH_TOKEN is required when auth is enabled")
		}
		l.logger.Info("auth enabled")
	}
	return cfg, nil
}

func (l loader) tle() TLE {
	cfg := TLE{
		EnableFetch:     l.boolean("tle.enable_fetch", false),
		SourceURL:       l.v.GetString("tle.source_url"),
		ExtraSourceURLs: l.list("tle.extra_urls"),
		CacheDir:        l.v.GetString("tle.cache_dir"),
		MaxFiles:        l.positiveInt("tle.max_files", 5),
		MaxAge:          l.duration("tle.max_age", 24*time.Hour),
	}
	l.logger.Info("TLE config",
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraSourceURLs,
		"cache_dir", cfg.CacheDir,
		"fetch_enabled", cfg.EnableFetch,
	)
	return cfg
}

func (l loader) propagation() propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers: l.positiveInt("prop.workers", runtime.NumCPU()),
		Step:    l.duration("prop.step", 5*time.Second),
		Horizon: l.duration("prop.horizon", 10*time.Minute),
	}
	l.logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
	)
	return cfg
}

func (l loader) search() passes.SearchConfig {
	def := passes.DefaultSearchConfig()
	cfg := def
	cfg.Precision = l.duration("search.precision", def.Precision)
	cfg.MaxIterations = l.positiveInt("search.max_iterations", def.MaxIterations)
	cfg.MaxSteps = l.positiveInt("search.max_steps", def.MaxSteps)
	cfg.Horizon = l.duration("search.horizon", def.Horizon)
	return cfg
}

func (l loader) schedule() schedule.Config {
	cfg := schedule.Config{
		Horizon:       l.duration("schedule.horizon", 24*time.Hour),
		Refresh:       l.duration("schedule.refresh", time.Minute),
		Buffer:        l.duration("schedule.buffer", 5*time.Minute),
		MinElevation:  l.float("schedule.min_elevation", 10, 0, 90),
		MaxPasses:     l.positiveInt("schedule.max_passes", 20),
		MaxSatellites: l.positiveInt("schedule.max_satellites", 200),
	}
	for _, s := range l.list("schedule.satellites") {
		id, err := strconv.Atoi(s)
		if err != nil || id < 1 {
			l.warn("schedule.satellites", s, "skipped")
			continue
		}
		cfg.Satellites = append(cfg.Satellites, id)
	}
	l.logger.Info("schedule config",
		"horizon_seconds", cfg.Horizon.Seconds(),
		"refresh_seconds", cfg.Refresh.Seconds(),
		"min_elevation", cfg.MinElevation,
		"satellites", len(cfg.Satellites),
	)
	return cfg
}

func (l loader) stream() stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: l.positiveInt("stream.max_concurrent", 10),
		KeepaliveInterval:  l.duration("stream.keepalive_interval", 30*time.Second),
		Interval:           l.duration("stream.interval", time.Second),
	}
	l.logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"interval_seconds", cfg.Interval.Seconds(),
	)
	return cfg
}

func (l loader) tracing() observability.TracingConfig {
	cfg := observability.TracingConfig{
		Enabled:     l.boolean("tracing.enabled", false),
		ServiceName: l.v.GetString("tracing.service_name"),
		Exporter:    strings.ToLower(l.v.GetString("tracing.exporter")),
		Endpoint:    l.v.GetString("tracing.endpoint"),
		SampleRatio: l.float("tracing.sample_ratio", 1, 0, 1),
	}
	switch cfg.Exporter {
	case "stdout", "otlp", "otlpgrpc":
	default:
		l.warn("tracing.exporter", cfg.Exporter, "stdout")
		cfg.Exporter = "stdout"
	}
	return cfg
}

// stations decodes the [[stations]] list, dropping entries that are
// unnamed or off the globe.
func (l loader) stations() []Station {
	var raw []Station
	if err := l.v.UnmarshalKey("stations", &raw); err != nil {
		l.logger.Warn("invalid stations list, ignoring", "error", err)
		return nil
	}

	out := raw[:0]
	seen := make(map[string]bool, len(raw))
	for _, s := range raw {
		switch {
		case s.Name == "":
			l.logger.Warn("station without a name, skipping", "latitude", s.Latitude, "longitude", s.Longitude)
		case seen[s.Name]:
			l.logger.Warn("duplicate station, skipping", "station", s.Name)
		case s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 360:
			l.logger.Warn("station position out of range, skipping", "station", s.Name,
				"latitude", s.Latitude, "longitude", s.Longitude)
		default:
			seen[s.Name] = true
			out = append(out, s)
		}
	}
	return out
}
