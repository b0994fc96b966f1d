package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"ride-hail-sim/internal/panel"
	"ride-hail-sim/internal/simulator"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`
	Services struct {
		SimulatorServicePort int `yaml:"simulator_service"`
	} `yaml:"services"`
	JWT struct {
		SecretKey string        `yaml:"secret_key"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"jwt"`
	Simulator struct {
		IntervalMS int `yaml:"interval_ms"`
		MaxRuns    int `yaml:"max_runs"`
	} `yaml:"simulator"`
	Panel struct {
		Height         float64 `yaml:"height"`
		ExpandedOffset float64 `yaml:"expanded_offset"`
		HideThreshold  float64 `yaml:"hide_threshold"`
		Tension        float64 `yaml:"tension"`
		Friction       float64 `yaml:"friction"`
		FrameMS        int     `yaml:"frame_ms"`
	} `yaml:"panel"`
	OSRM struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"osrm"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// SimulatorInterval is the tick cadence as a duration.
func (c *Config) SimulatorInterval() time.Duration {
	return time.Duration(c.Simulator.IntervalMS) * time.Millisecond
}

// PanelFrame is the animation frame period as a duration.
func (c *Config) PanelFrame() time.Duration {
	return time.Duration(c.Panel.FrameMS) * time.Millisecond
}

// PanelLayout is the panel geometry as configured.
func (c *Config) PanelLayout() panel.Layout {
	return panel.Layout{
		Height:         c.Panel.Height,
		ExpandedOffset: c.Panel.ExpandedOffset,
		HideThreshold:  c.Panel.HideThreshold,
	}
}

// LoadFromFile loads .env (if present), decodes the YAML file, applies
// environment overrides and defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Load(file)
}

// Load decodes YAML from r and finishes the config like LoadFromFile.
func Load(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv lets hosts and secrets come from the environment.
func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("DB_HOST", &cfg.Database.Host)
	setString("DB_USER", &cfg.Database.User)
	setString("DB_PASSWORD", &cfg.Database.Password)
	setString("DB_NAME", &cfg.Database.Name)
	setString("RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	setString("RABBITMQ_USER", &cfg.RabbitMQ.User)
	setString("RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password)
	setString("JWT_SECRET", &cfg.JWT.SecretKey)
	setString("OSRM_BASE_URL", &cfg.OSRM.BaseURL)
	setString("LOG_LEVEL", &cfg.Log.Level)

	return errors.Join(
		setInt("DB_PORT", &cfg.Database.Port),
		setInt("RABBITMQ_PORT", &cfg.RabbitMQ.Port),
		setInt("SIMULATOR_SERVICE_PORT", &cfg.Services.SimulatorServicePort),
	)
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Services
	if cfg.Services.SimulatorServicePort == 0 {
		cfg.Services.SimulatorServicePort = 3005
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 24 * time.Hour
	}

	// Simulator
	if cfg.Simulator.IntervalMS == 0 {
		cfg.Simulator.IntervalMS = 2000
	}
	if cfg.Simulator.MaxRuns == 0 {
		cfg.Simulator.MaxRuns = 100
	}

	// Panel
	if cfg.Panel.Height == 0 {
		cfg.Panel.Height = 400
	}
	if cfg.Panel.ExpandedOffset == 0 {
		cfg.Panel.ExpandedOffset = -300
	}
	if cfg.Panel.HideThreshold == 0 {
		cfg.Panel.HideThreshold = 50
	}
	if cfg.Panel.Tension == 0 {
		cfg.Panel.Tension = 65
	}
	if cfg.Panel.Friction == 0 {
		cfg.Panel.Friction = 12
	}
	if cfg.Panel.FrameMS == 0 {
		cfg.Panel.FrameMS = 16
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}
	if c.Database.MaxConns < 0 {
		problems = append(problems, "database.max_conns must not be negative")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Services
	if c.Services.SimulatorServicePort <= 0 || c.Services.SimulatorServicePort > 65535 {
		problems = append(problems, "services.simulator_service must be in 1..65535")
	}

	if c.JWT.TTL < 0 {
		problems = append(problems, "jwt.ttl must not be negative")
	}

	// Simulator
	minMS, maxMS := simulator.MinInterval.Milliseconds(), simulator.MaxInterval.Milliseconds()
	if ms := int64(c.Simulator.IntervalMS); ms < minMS || ms > maxMS {
		problems = append(problems, fmt.Sprintf("simulator.interval_ms must be in %d..%d", minMS, maxMS))
	}
	if c.Simulator.MaxRuns < 0 {
		problems = append(problems, "simulator.max_runs must be positive")
	}

	// Panel
	if err := c.PanelLayout().Validate(); err != nil {
		problems = append(problems, strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	if c.Panel.HideThreshold < 0 || c.Panel.HideThreshold >= c.Panel.Height {
		problems = append(problems, "panel.hide_threshold must be in 0..height")
	}
	if c.Panel.FrameMS < 0 {
		problems = append(problems, "panel.frame_ms must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, "log.level must be one of debug|info|warn|error")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
