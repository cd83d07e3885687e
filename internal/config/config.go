package config

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env        string `env:"APP_ENV" envDefault:"dev"`
	HTTPPort   string `env:"HTTP_PORT" envDefault:"8081"`
	StatusPort string `env:"STATUS_PORT" envDefault:"8082"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"./data/attendance.db"`
	RosterPath     string `env:"ROSTER_PATH"`

	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"memory"`
	FrameQueue   string `env:"FRAME_QUEUE" envDefault:"attendance:frames"`
	NotifyQueue  string `env:"NOTIFY_QUEUE" envDefault:"attendance:notifications"`

	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"attendguard"`
	JWTSigningKey   string        `env:"JWT_SIGNING_KEY" envDefault:"dev-signing-secret-change"`
	AccessTTL       time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL      time.Duration `env:"REFRESH_TTL" envDefault:"24h"`
	RateLimitPerMin int           `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`

	FaceServiceURL string `env:"FACE_SERVICE_URL" envDefault:"http://localhost:8000"`
	FaceSkip       bool   `env:"FACE_SKIP" envDefault:"false"`

	Cloudinary Cloudinary
	Match      Match
	Policy     Policy
	Presence   Presence
	Report     Report
	Email      Email
	Slack      Slack
}

type Cloudinary struct {
	CloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `env:"CLOUDINARY_API_KEY"`
	APISecret string `env:"CLOUDINARY_API_SECRET"`
	Folder    string `env:"CLOUDINARY_FOLDER" envDefault:"attendguard/frames"`
}

// Enabled reports whether all Cloudinary credentials are present.
func (c Cloudinary) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// Match configures the signature matcher.
type Match struct {
	Metric          string  `env:"MATCH_METRIC" envDefault:"euclidean"`
	Tolerance       float64 `env:"MATCH_TOLERANCE" envDefault:"0.6"`
	ConfidenceFloor float64 `env:"MATCH_CONFIDENCE_FLOOR" envDefault:"40"`
}

// Policy configures the verification orchestrator.
type Policy struct {
	Cooldown        time.Duration `env:"COOLDOWN" envDefault:"120s"`
	FactorTimeout   time.Duration `env:"FACTOR_TIMEOUT" envDefault:"30s"`
	CodeSecret      string        `env:"CODE_SECRET" envDefault:"JBSWY3DPEHPK3PXP"`
	CodeSecretParam string        `env:"CODE_SECRET_SSM_PARAM"`
	CodeStep        time.Duration `env:"CODE_STEP" envDefault:"30s"`
	Timezone        string        `env:"ATTENDANCE_TZ" envDefault:"Local"`
}

// Presence configures the local network presence monitor.
type Presence struct {
	Discovery string        `env:"PRESENCE_DISCOVERY" envDefault:"arp"`
	Interval  time.Duration `env:"PRESENCE_INTERVAL" envDefault:"10s"`
	Timeout   time.Duration `env:"PRESENCE_TIMEOUT" envDefault:"300s"`
	ARPPath   string        `env:"PRESENCE_PROC_ARP" envDefault:"/proc/net/arp"`
	Devices   []string      `env:"PRESENCE_STATIC_DEVICES" envSeparator:","`
}

type Report struct {
	Interval time.Duration `env:"REPORT_INTERVAL" envDefault:"24h"`
	Bucket   string        `env:"REPORT_BUCKET"`
}

type Email struct {
	Sender   string `env:"EMAIL_SENDER"`
	Receiver string `env:"EMAIL_RECEIVER"`
}

// Enabled reports whether an email channel is configured.
func (e Email) Enabled() bool { return e.Sender != "" && e.Receiver != "" }

type Slack struct {
	Token        string `env:"SLACK_BOT_TOKEN"`
	InfoChannel  string `env:"SLACK_INFO_CHANNEL"`
	ErrorChannel string `env:"SLACK_ERROR_CHANNEL"`
}

// Enabled reports whether Slack delivery is configured.
func (s Slack) Enabled() bool { return s.Token != "" }

var (
	ErrInvalidDriver    = errors.New("config: unsupported database driver")
	ErrInvalidTolerance = errors.New("config: match tolerance must be positive")
	ErrInvalidFloor     = errors.New("config: confidence floor must be within 0..100")
	ErrInvalidMetric    = errors.New("config: unsupported match metric")
	ErrInvalidSecret    = errors.New("config: code secret must be base32")
	ErrInvalidDuration  = errors.New("config: durations must be positive")
	ErrInvalidDiscovery = errors.New("config: unsupported presence discovery")
)

// Load reads an optional .env file and then the process environment.
func Load() (App, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg App
	if err := env.Parse(&cfg); err != nil {
		return App{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the worker cannot start with.
func (a App) Validate() error {
	switch a.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, a.DatabaseDriver)
	}
	switch a.Match.Metric {
	case "euclidean", "cosine":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMetric, a.Match.Metric)
	}
	if a.Match.Tolerance <= 0 {
		return ErrInvalidTolerance
	}
	if a.Match.ConfidenceFloor < 0 || a.Match.ConfidenceFloor > 100 {
		return ErrInvalidFloor
	}
	switch a.Presence.Discovery {
	case "arp", "procfs", "static":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDiscovery, a.Presence.Discovery)
	}
	for _, d := range []time.Duration{a.Policy.Cooldown, a.Policy.FactorTimeout, a.Policy.CodeStep, a.Presence.Interval, a.Presence.Timeout, a.Report.Interval} {
		if d <= 0 {
			return ErrInvalidDuration
		}
	}
	if a.Policy.CodeSecretParam == "" {
		if err := validSecret(a.Policy.CodeSecret); err != nil {
			return err
		}
	}
	return nil
}

// Location resolves the timezone used for calendar-day boundaries.
func (p Policy) Location() (*time.Location, error) {
	if p.Timezone == "" || p.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(p.Timezone)
}

func validSecret(secret string) error {
	s := strings.ToUpper(strings.TrimSpace(secret))
	if s == "" {
		return ErrInvalidSecret
	}
	if n := len(s) % 8; n != 0 {
		s += strings.Repeat("=", 8-n)
	}
	if _, err := base32.StdEncoding.DecodeString(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return nil
}
