package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	DataDir string `koanf:"data_dir"` // overrides the default XDG data directory

	Network   NetworkConfig   `koanf:"network"`
	Streaming StreamingConfig `koanf:"streaming"`
	Downloads DownloadsConfig `koanf:"downloads"`
	Storage   StorageConfig   `koanf:"storage"`
	Playback  PlaybackConfig  `koanf:"playback"`
}

// NetworkConfig holds transfer and bandwidth estimation settings.
type NetworkConfig struct {
	RetryAttempts    int  `koanf:"retry_attempts"`     // load retries before giving up on a track (default: 3)
	TimeoutSeconds   int  `koanf:"timeout_seconds"`    // transfer deadline, then treated as a failure (default: 30)
	WifiOnlyDownload bool `koanf:"wifi_only_download"` // defer downloads on metered connections
}

// StreamingConfig holds buffer monitor tunables.
type StreamingConfig struct {
	ChunkSizeBytes   int     `koanf:"chunk_size_bytes"`   // fetch granularity (default: 1 MiB)
	PreloadSeconds   float64 `koanf:"preload_seconds"`    // how far ahead of the playhead to buffer (default: 30)
	MinBufferSeconds float64 `koanf:"min_buffer_seconds"` // below this the stream is considered unhealthy (default: 10)
}

// DownloadsConfig holds offline download coordinator settings.
type DownloadsConfig struct {
	MaxConcurrent int `koanf:"max_concurrent"` // parallel downloads (default: 3)
}

// StorageConfig holds offline store and eviction settings.
type StorageConfig struct {
	MaxCacheSizeBytes int64 `koanf:"max_cache_size_bytes"` // offline storage quota (default: 2 GiB)
	MaxTrackAgeDays   int   `koanf:"max_track_age_days"`   // downloads older than this expire (0 = never)
	AutoCleanup       bool  `koanf:"auto_cleanup"`         // evict automatically when storage fills (default: true)
}

// PlaybackConfig holds playback behaviour settings.
type PlaybackConfig struct {
	PreferredQuality         string  `koanf:"preferred_quality"` // "auto" or a profile label (default: "auto")
	CrossfadeEnabled         bool    `koanf:"crossfade_enabled"`
	CrossfadeDurationSeconds float64 `koanf:"crossfade_duration_seconds"` // default: 5
	Volume                   float64 `koanf:"volume"`                     // 0.0-1.0 (default: 1.0)
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := defaults()

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.DataDir != "" {
		cfg.DataDir = expandPath(cfg.DataDir)
	} else {
		cfg.DataDir = filepath.Join(xdg.DataHome, "cadence")
	}

	normalize(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Network: NetworkConfig{
			RetryAttempts:  3,
			TimeoutSeconds: 30,
		},
		Streaming: StreamingConfig{
			ChunkSizeBytes:   1 << 20,
			PreloadSeconds:   30,
			MinBufferSeconds: 10,
		},
		Downloads: DownloadsConfig{
			MaxConcurrent: 3,
		},
		Storage: StorageConfig{
			MaxCacheSizeBytes: 2 << 30,
			AutoCleanup:       true,
		},
		Playback: PlaybackConfig{
			PreferredQuality:         "auto",
			CrossfadeDurationSeconds: 5,
			Volume:                   1.0,
		},
	}
}

// normalize clamps values a config file could set out of range.
func normalize(cfg *Config) {
	if cfg.Network.RetryAttempts < 1 {
		cfg.Network.RetryAttempts = 1
	}
	if cfg.Network.TimeoutSeconds <= 0 {
		cfg.Network.TimeoutSeconds = 30
	}
	if cfg.Streaming.ChunkSizeBytes <= 0 {
		cfg.Streaming.ChunkSizeBytes = 1 << 20
	}
	if cfg.Streaming.PreloadSeconds <= 0 {
		cfg.Streaming.PreloadSeconds = 30
	}
	if cfg.Streaming.MinBufferSeconds <= 0 {
		cfg.Streaming.MinBufferSeconds = 10
	}
	if cfg.Downloads.MaxConcurrent < 1 {
		cfg.Downloads.MaxConcurrent = 1
	}
	if cfg.Storage.MaxCacheSizeBytes <= 0 {
		cfg.Storage.MaxCacheSizeBytes = 2 << 30
	}
	if cfg.Playback.CrossfadeDurationSeconds <= 0 {
		cfg.Playback.CrossfadeDurationSeconds = 5
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 1 {
		cfg.Playback.Volume = 1.0
	}
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/cadence/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cadence", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
