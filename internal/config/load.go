package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"video2article/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. V2A_LANGUAGE.
const EnvPrefix = "V2A"

// APIKeyEnv is the conventional variable holding the speech-to-text key.
const APIKeyEnv = "ASSEMBLYAI_API_KEY"

// Keys shared by viper, flags and the settings file.
const (
	KeyDownloaderPath = "downloader_path"
	KeyLanguage       = "language"
	KeyAPIBaseURL     = "api_base_url"
	KeyWorkDir        = "work_dir"
	KeyPollInterval   = "poll_interval"
	KeyPollTimeout    = "poll_timeout"
	KeyListenAddr     = "listen_addr"
	KeyLogLevel       = "log_level"
	KeyAPIKey         = "api_key"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadDotEnv loads variables from the given .env files, skipping missing ones.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Load layers settings: stored file, then environment (V2A_*, ASSEMBLYAI_API_KEY),
// then any flags the caller bound on v.
func Load(v *viper.Viper, store Store) (domain.Settings, error) {
	base, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv(KeyAPIKey, EnvPrefix+"_API_KEY", APIKeyEnv); err != nil {
		return domain.Settings{}, fmt.Errorf("binding %s: %w", APIKeyEnv, err)
	}

	setDefaults(v, base)

	var cfg domain.Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("unmarshaling settings: %w", err)
	}
	cfg = withDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("validating settings: %w", err)
	}
	return cfg, nil
}

// setDefaults seeds viper with the stored settings so env and flags override them.
func setDefaults(v *viper.Viper, base domain.Settings) {
	v.SetDefault(KeyDownloaderPath, base.DownloaderPath)
	v.SetDefault(KeyLanguage, base.Language)
	v.SetDefault(KeyAPIBaseURL, base.APIBaseURL)
	v.SetDefault(KeyWorkDir, base.WorkDir)
	v.SetDefault(KeyPollInterval, base.PollInterval)
	v.SetDefault(KeyPollTimeout, base.PollTimeout)
	v.SetDefault(KeyListenAddr, base.ListenAddr)
	v.SetDefault(KeyLogLevel, base.LogLevel)
	v.SetDefault(KeyAPIKey, "")
}

// Validate checks settings values that would otherwise fail deep inside a run.
func Validate(cfg domain.Settings) error {
	checks := []struct {
		field string
		value any
		tag   string
	}{
		{KeyAPIBaseURL, cfg.APIBaseURL, "required,url"},
		{KeyLanguage, cfg.Language, "required,max=10"},
		{KeyDownloaderPath, cfg.DownloaderPath, "required"},
		{KeyWorkDir, cfg.WorkDir, "required"},
		{KeyListenAddr, cfg.ListenAddr, "required"},
		{KeyLogLevel, strings.ToLower(cfg.LogLevel), "oneof=debug info warn error"},
	}
	for _, c := range checks {
		if err := validate.Var(c.value, c.tag); err != nil {
			return fmt.Errorf("%s: %w", c.field, err)
		}
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%s must be positive", KeyPollInterval)
	}
	if cfg.PollTimeout < cfg.PollInterval {
		return fmt.Errorf("%s must not be shorter than %s", KeyPollTimeout, KeyPollInterval)
	}
	return nil
}
