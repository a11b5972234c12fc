package config

import (
	"os"
	"path/filepath"
	"time"

	"video2article/internal/domain"
)

// AppDirName is the per-user directory holding settings, tools and work files.
const AppDirName = ".video2article"

// AppDir returns ~/.video2article, or a relative fallback when home is unknown.
func AppDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, AppDirName)
}

// SettingsPath returns the location of the persisted settings file.
func SettingsPath() string {
	return filepath.Join(AppDir(), "settings.json")
}

// BinDir returns the directory receiving downloaded tool binaries.
func BinDir() string {
	return filepath.Join(AppDir(), "bin")
}

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		DownloaderPath: "yt-dlp",
		Language:       "en",
		APIBaseURL:     "https://api.assemblyai.com",
		WorkDir:        filepath.Join(AppDir(), "work"),
		PollInterval:   3 * time.Second,
		PollTimeout:    30 * time.Minute,
		ListenAddr:     "127.0.0.1:8080",
		LogLevel:       "info",
	}
}

// withDefaults fills zero fields from DefaultSettings.
func withDefaults(cfg domain.Settings) domain.Settings {
	def := DefaultSettings()
	if cfg.DownloaderPath == "" {
		cfg.DownloaderPath = def.DownloaderPath
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = def.APIBaseURL
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = def.WorkDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	return cfg
}
