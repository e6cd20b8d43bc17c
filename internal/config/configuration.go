package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Storage directories
	DownloadsDir  string `mapstructure:"DOWNLOADS_DIR"`
	ConvertedDir  string `mapstructure:"CONVERTED_DIR"`
	ArchiveDir    string `mapstructure:"ARCHIVE_DIR"`
	ThumbnailsDir string `mapstructure:"THUMBNAILS_DIR"`

	// URL prefixes under which the directories above are served
	DownloadsURLPrefix  string `mapstructure:"DOWNLOADS_URL_PREFIX"`
	ConvertedURLPrefix  string `mapstructure:"CONVERTED_URL_PREFIX"`
	ArchiveURLPrefix    string `mapstructure:"ARCHIVE_URL_PREFIX"`
	ThumbnailsURLPrefix string `mapstructure:"THUMBNAILS_URL_PREFIX"`

	// Filename templates. Recognized placeholders: {id}, {fn}, {ext}, {index}.
	DownloadTemplate  string `mapstructure:"DOWNLOAD_TEMPLATE"`
	ConvertedTemplate string `mapstructure:"CONVERTED_TEMPLATE"`
	ArchiveTemplate   string `mapstructure:"ARCHIVE_TEMPLATE"`
	ThumbnailTemplate string `mapstructure:"THUMBNAIL_TEMPLATE"`

	// External tools
	YtdlpPath   string `mapstructure:"YTDLP_PATH"`
	FFmpegPath  string `mapstructure:"FFMPEG_PATH"`
	FFprobePath string `mapstructure:"FFPROBE_PATH"`

	// Encoding profile
	OutputFormat     string `mapstructure:"OUTPUT_FORMAT"`
	VideoCodec       string `mapstructure:"VIDEO_CODEC"`
	AudioCodec       string `mapstructure:"AUDIO_CODEC"`
	AudioBitrate     string `mapstructure:"AUDIO_BITRATE"`
	Preset           string `mapstructure:"PRESET"`
	ThumbnailQuality int    `mapstructure:"THUMBNAIL_QUALITY"`

	// Legacy flat-file archive metadata, imported once on first startup.
	LegacyMetadataFile string `mapstructure:"LEGACY_METADATA_FILE"`
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

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)

	viper.SetDefault("DOWNLOADS_DIR", "/data/downloads")
	viper.SetDefault("CONVERTED_DIR", "/data/converted")
	viper.SetDefault("ARCHIVE_DIR", "/data/archive")
	viper.SetDefault("THUMBNAILS_DIR", "/data/thumbnails")

	viper.SetDefault("DOWNLOADS_URL_PREFIX", "/files/downloads")
	viper.SetDefault("CONVERTED_URL_PREFIX", "/files/converted")
	viper.SetDefault("ARCHIVE_URL_PREFIX", "/files/archive")
	viper.SetDefault("THUMBNAILS_URL_PREFIX", "/files/thumbnails")

	viper.SetDefault("DOWNLOAD_TEMPLATE", "{id}.{ext}")
	viper.SetDefault("CONVERTED_TEMPLATE", "{id}_converted.{ext}")
	viper.SetDefault("ARCHIVE_TEMPLATE", "{fn}.{ext}")
	viper.SetDefault("THUMBNAIL_TEMPLATE", "{id}_thumb_{index}.jpg")

	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")

	viper.SetDefault("OUTPUT_FORMAT", "mp4")
	viper.SetDefault("VIDEO_CODEC", "libx264")
	viper.SetDefault("AUDIO_CODEC", "aac")
	viper.SetDefault("AUDIO_BITRATE", "192k")
	viper.SetDefault("PRESET", "fast")
	viper.SetDefault("THUMBNAIL_QUALITY", 4)

	viper.SetDefault("LEGACY_METADATA_FILE", "videos.json")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "config", cfg)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
