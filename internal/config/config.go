package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	APIKey          string        `env:"API_KEY"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	S3Bucket     string `env:"S3_BUCKET"`
	S3Region     string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint   string `env:"S3_ENDPOINT"`
	S3Folder     string `env:"S3_FOLDER" envDefault:"proctoring"`
	AWSAccessKey string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey string `env:"AWS_SECRET_ACCESS_KEY"`

	AssessmentAPIURL       string        `env:"ASSESSMENT_API_URL"`
	AssessmentAPIToken     string        `env:"ASSESSMENT_API_TOKEN"`
	AssessmentPollInterval time.Duration `env:"ASSESSMENT_POLL_INTERVAL" envDefault:"5s"`

	FFmpegPath         string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	CameraInputFormat  string `env:"CAMERA_INPUT_FORMAT" envDefault:"v4l2"`
	CameraDevice       string `env:"CAMERA_DEVICE" envDefault:"/dev/video0"`
	MicrophoneFormat   string `env:"MICROPHONE_INPUT_FORMAT" envDefault:"pulse"`
	MicrophoneDevice   string `env:"MICROPHONE_DEVICE" envDefault:"default"`
	DisplayInputFormat string `env:"DISPLAY_INPUT_FORMAT" envDefault:"x11grab"`
	DisplayDevice      string `env:"DISPLAY_DEVICE" envDefault:":0.0"`

	UploadConcurrency int `env:"UPLOAD_CONCURRENCY" envDefault:"4"`
	// DryRun accepts every chunk and image without storing it.
	DryRun bool `env:"DRY_RUN" envDefault:"false"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse env config: %w", err)
	}

	cfg.S3Bucket = strings.TrimSpace(cfg.S3Bucket)
	cfg.AWSAccessKey = strings.TrimSpace(cfg.AWSAccessKey)
	cfg.AWSSecretKey = strings.TrimSpace(cfg.AWSSecretKey)
	cfg.S3Folder = strings.Trim(strings.TrimSpace(cfg.S3Folder), "/")
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 4
	}

	return cfg, nil
}

// HasDirectCredentials reports whether long-lived storage credentials are
// available, which selects the direct upload path over presigned POSTs.
func (c *Config) HasDirectCredentials() bool {
	return c.S3Bucket != "" && c.AWSAccessKey != "" && c.AWSSecretKey != ""
}

// CaptureConfig is the per media kind capture and encoding configuration.
// Zero values mean "inherit".
type CaptureConfig struct {
	ChunkIntervalMs    int      `yaml:"chunk_interval_ms"`
	SettleDelayMs      int      `yaml:"settle_delay_ms"`
	VideoBitsPerSecond int      `yaml:"video_bits_per_second"`
	AudioBitsPerSecond int      `yaml:"audio_bits_per_second"`
	MimeTypes          []string `yaml:"mime_types"`

	// stills
	IntervalMs  int     `yaml:"interval_ms"`
	Quality     float64 `yaml:"quality"`
	MaxWidth    int     `yaml:"max_width"`
	MaxHeight   int     `yaml:"max_height"`
	Format      string  `yaml:"format"`
	MinBytes    int64   `yaml:"min_bytes"`
	WarnBytes   int64   `yaml:"warn_bytes"`
	MaxBytes    int64   `yaml:"max_bytes"`
	Concurrency int     `yaml:"concurrency"`
}

func (c CaptureConfig) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMs) * time.Millisecond
}

func (c CaptureConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

func (c CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Merge returns c with every zero field taken from base.
func (c CaptureConfig) Merge(base CaptureConfig) CaptureConfig {
	out := base
	if c.ChunkIntervalMs > 0 {
		out.ChunkIntervalMs = c.ChunkIntervalMs
	}
	if c.SettleDelayMs > 0 {
		out.SettleDelayMs = c.SettleDelayMs
	}
	if c.VideoBitsPerSecond > 0 {
		out.VideoBitsPerSecond = c.VideoBitsPerSecond
	}
	if c.AudioBitsPerSecond > 0 {
		out.AudioBitsPerSecond = c.AudioBitsPerSecond
	}
	if len(c.MimeTypes) > 0 {
		out.MimeTypes = append([]string(nil), c.MimeTypes...)
	}
	if c.IntervalMs > 0 {
		out.IntervalMs = c.IntervalMs
	}
	if c.Quality > 0 && c.Quality <= 1 {
		out.Quality = c.Quality
	}
	if c.MaxWidth > 0 {
		out.MaxWidth = c.MaxWidth
	}
	if c.MaxHeight > 0 {
		out.MaxHeight = c.MaxHeight
	}
	if c.Format != "" {
		out.Format = c.Format
	}
	if c.MinBytes > 0 {
		out.MinBytes = c.MinBytes
	}
	if c.WarnBytes > 0 {
		out.WarnBytes = c.WarnBytes
	}
	if c.MaxBytes > 0 {
		out.MaxBytes = c.MaxBytes
	}
	if c.Concurrency > 0 {
		out.Concurrency = c.Concurrency
	}
	return out
}

type CaptureProfiles struct {
	Profiles map[string]CaptureConfig `yaml:"capture_profiles"`
}

// LoadCaptureProfiles reads the YAML profile file. A missing file is not an
// error: built-in defaults apply.
func LoadCaptureProfiles() (*CaptureProfiles, error) {
	configPath := getEnv("CAPTURE_PROFILES_PATH", "capture-profiles.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &CaptureProfiles{}, nil
		}
		return nil, fmt.Errorf("failed to read capture profiles: %w", err)
	}

	return ParseCaptureProfiles(data)
}

func ParseCaptureProfiles(data []byte) (*CaptureProfiles, error) {
	var profiles CaptureProfiles
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse capture profiles: %w", err)
	}
	return &profiles, nil
}

// GetCaptureConfig merges built-in defaults, the "default" profile and the
// profile for kind, in that order.
func (p *CaptureProfiles) GetCaptureConfig(kind string) CaptureConfig {
	cfg := DefaultCaptureConfig(kind)
	if p == nil {
		return cfg
	}
	if defaults, exists := p.Profiles["default"]; exists {
		cfg = defaults.Merge(cfg)
	}
	if options, exists := p.Profiles[kind]; exists {
		cfg = options.Merge(cfg)
	}
	return cfg
}

func DefaultCaptureConfig(kind string) CaptureConfig {
	switch kind {
	case "screen":
		return CaptureConfig{
			ChunkIntervalMs:    30_000,
			SettleDelayMs:      200,
			VideoBitsPerSecond: 1_500_000,
			MimeTypes: []string{
				"video/webm;codecs=vp9",
				"video/webm;codecs=vp8",
				"video/webm",
			},
		}
	case "image":
		return CaptureConfig{
			IntervalMs:  60_000,
			Quality:     0.8,
			MaxWidth:    1920,
			MaxHeight:   1080,
			Format:      "image/jpeg",
			MinBytes:    1024,
			WarnBytes:   5 * 1024 * 1024,
			MaxBytes:    10 * 1024 * 1024,
			Concurrency: 2,
		}
	default:
		return CaptureConfig{
			ChunkIntervalMs:    30_000,
			SettleDelayMs:      200,
			VideoBitsPerSecond: 1_000_000,
			AudioBitsPerSecond: 64_000,
			MimeTypes: []string{
				"video/webm;codecs=vp9,opus",
				"video/webm;codecs=vp8,opus",
				"video/webm",
			},
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
