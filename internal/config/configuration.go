package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"thirdcoast.systems/clipfit/pkg/utils/language"
)

// maxLadderAttempts is the longest quality ladder (1080, 720, 480, 360).
const maxLadderAttempts = 4

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT" validate:"min=1,max=65535"`

	// Tools
	TempDir         string `mapstructure:"TEMP_DIR" validate:"required"`
	YtdlpPath       string `mapstructure:"YTDLP_PATH" validate:"required"`
	FFmpegPath      string `mapstructure:"FFMPEG_PATH" validate:"required"`
	FFprobePath     string `mapstructure:"FFPROBE_PATH" validate:"required"`
	YtdlpAutoUpdate bool   `mapstructure:"YTDLP_AUTO_UPDATE"`

	// Size budgets, in MB
	MaxInlineMB      float64 `mapstructure:"MAX_INLINE_MB" validate:"gt=0"`
	FetchBudgetMB    float64 `mapstructure:"FETCH_BUDGET_MB" validate:"gt=0,ltefield=MaxInlineMB"`
	MaxDocumentMB    float64 `mapstructure:"MAX_DOCUMENT_MB" validate:"gtfield=MaxInlineMB"`
	HighCeilingMB    float64 `mapstructure:"HIGH_CEILING_MB" validate:"gt=0"`
	CompressTargetMB float64 `mapstructure:"COMPRESS_TARGET_MB" validate:"gt=0,ltefield=MaxInlineMB"`

	// Fetch and transcode settings
	AudioBitrateKbps  int    `mapstructure:"AUDIO_BITRATE_KBPS" validate:"min=32,max=320"`
	DownloadRateLimit string `mapstructure:"DOWNLOAD_RATE_LIMIT"`
	UserAgent         string `mapstructure:"USER_AGENT"`
	SubtitleLangs     string `mapstructure:"SUBTITLE_LANGS" validate:"required"`

	// Timeouts
	ProbeTimeout        time.Duration `mapstructure:"PROBE_TIMEOUT" validate:"gt=0"`
	DownloadTimeout     time.Duration `mapstructure:"DOWNLOAD_TIMEOUT" validate:"gt=0"`
	ShortProcessTimeout time.Duration `mapstructure:"SHORT_PROCESS_TIMEOUT" validate:"gt=0"`
	LongProcessTimeout  time.Duration `mapstructure:"LONG_PROCESS_TIMEOUT" validate:"gt=0"`

	// Load shaping; zero disables each
	AttemptSpacing time.Duration `mapstructure:"ATTEMPT_SPACING" validate:"gte=0"`
	MaxConcurrent  int           `mapstructure:"MAX_CONCURRENT" validate:"gte=0"`

	// Cleanup
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL" validate:"gt=0"`
	SweepMaxAge   time.Duration `mapstructure:"SWEEP_MAX_AGE" validate:"gt=0"`
	DeliveryTTL   time.Duration `mapstructure:"DELIVERY_TTL" validate:"gt=0"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func setDefaults() {
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("TEMP_DIR", "./temp")
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("YTDLP_AUTO_UPDATE", false)

	viper.SetDefault("MAX_INLINE_MB", 50)
	viper.SetDefault("FETCH_BUDGET_MB", 45)
	viper.SetDefault("MAX_DOCUMENT_MB", 2000)
	viper.SetDefault("HIGH_CEILING_MB", 100)
	viper.SetDefault("COMPRESS_TARGET_MB", 45)

	viper.SetDefault("AUDIO_BITRATE_KBPS", 192)
	viper.SetDefault("DOWNLOAD_RATE_LIMIT", "5M")
	viper.SetDefault("SUBTITLE_LANGS", "ru,en")

	viper.SetDefault("PROBE_TIMEOUT", 30*time.Second)
	viper.SetDefault("DOWNLOAD_TIMEOUT", 300*time.Second)
	viper.SetDefault("SHORT_PROCESS_TIMEOUT", 3*time.Minute)
	viper.SetDefault("LONG_PROCESS_TIMEOUT", 5*time.Minute)

	viper.SetDefault("ATTEMPT_SPACING", 0)
	viper.SetDefault("MAX_CONCURRENT", 0)

	viper.SetDefault("SWEEP_INTERVAL", 30*time.Minute)
	viper.SetDefault("SWEEP_MAX_AGE", time.Hour)
	viper.SetDefault("DELIVERY_TTL", 15*time.Minute)
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()
	setDefaults()

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.validateDerived(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validateDerived() error {
	if _, err := c.RateLimitBytes(); err != nil {
		return err
	}
	if _, err := c.SubtitleLanguages(); err != nil {
		return err
	}
	if c.HighCeilingMB < c.FetchBudgetMB {
		return fmt.Errorf("HIGH_CEILING_MB (%v) must not be below FETCH_BUDGET_MB (%v)", c.HighCeilingMB, c.FetchBudgetMB)
	}
	if longest := c.LongestRequest() + c.DeliveryTTL; c.SweepMaxAge <= longest {
		return fmt.Errorf("SWEEP_MAX_AGE (%s) must exceed the longest request plus DELIVERY_TTL (%s)", c.SweepMaxAge, longest)
	}
	return nil
}

// LongestRequest is the worst-case wall time of one request: probe, every ladder
// attempt, and one post-processing step.
func (c *Config) LongestRequest() time.Duration {
	return c.ProbeTimeout + maxLadderAttempts*c.DownloadTimeout + c.LongProcessTimeout
}

// RateLimitBytes parses DOWNLOAD_RATE_LIMIT ("5M", "500 KiB"). 0 means unlimited.
func (c *Config) RateLimitBytes() (uint64, error) {
	s := strings.TrimSpace(c.DownloadRateLimit)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("DOWNLOAD_RATE_LIMIT %q: %w", c.DownloadRateLimit, err)
	}
	return n, nil
}

// RateLimitArg renders the rate limit for yt-dlp --limit-rate, or "" when unlimited.
func (c *Config) RateLimitArg() string {
	n, err := c.RateLimitBytes()
	if err != nil || n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

// SubtitleLanguages parses SUBTITLE_LANGS ("ru,en") into yt-dlp language codes.
func (c *Config) SubtitleLanguages() ([]string, error) {
	langs, err := language.ParseList(c.SubtitleLangs)
	if err != nil {
		return nil, fmt.Errorf("SUBTITLE_LANGS: %w", err)
	}
	return langs, nil
}
