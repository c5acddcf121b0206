// omp-launcher/config/launcher.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultArchiveURL    = "https://assets.open.mp/samp_clients.7z"
	DefaultUpdateInfoURL = "https://api.open.mp/launcher"
	DefaultListenAddr    = "127.0.0.1:8787"
)

// Launcher holds the options of the launcher process itself.
type Launcher struct {
	DataDir        string `mapstructure:"data_dir"`
	SettingsFile   string `mapstructure:"settings_file"`
	ArchiveURL     string `mapstructure:"archive_url"`
	UpdateInfoURL  string `mapstructure:"update_info_url"`
	ReferenceTable string `mapstructure:"reference_table"`

	ListenAddr  string `mapstructure:"listen_addr"`
	OpenBrowser bool   `mapstructure:"open_browser"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	MaxDownloadAttempts int           `mapstructure:"max_download_attempts"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	ReadyDelay          time.Duration `mapstructure:"ready_delay"`
	HashWorkers         int           `mapstructure:"hash_workers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "")
	v.SetDefault("settings_file", "")
	v.SetDefault("archive_url", DefaultArchiveURL)
	v.SetDefault("update_info_url", DefaultUpdateInfoURL)
	v.SetDefault("reference_table", "")
	v.SetDefault("listen_addr", DefaultListenAddr)
	v.SetDefault("open_browser", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("max_download_attempts", 3)
	v.SetDefault("settle_delay", 500*time.Millisecond)
	v.SetDefault("ready_delay", time.Second)
	v.SetDefault("hash_workers", 4)
}

// LoadLauncher reads cfgFile (or launcher.yaml from the usual places when
// empty) and OMPL_* environment variables on top of the defaults.
func LoadLauncher(cfgFile string) (*Launcher, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("launcher")
		v.SetConfigType("yaml")
		if dir, err := DefaultSettingsPath(); err == nil {
			v.AddConfigPath(strings.TrimSuffix(dir, "settings.json"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("OMPL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read launcher config: %w", err)
		}
	}

	cfg := &Launcher{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode launcher config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

// ValidationError holds every problem found in the launcher config.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("launcher config invalid:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate returns a list of problems, empty when the config is usable.
func (c *Launcher) Validate() []string {
	var errs []string
	for key, raw := range map[string]string{"archive_url": c.ArchiveURL, "update_info_url": c.UpdateInfoURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("%s: %q is not an absolute URL", key, raw))
		}
	}
	if c.MaxDownloadAttempts < 1 {
		errs = append(errs, fmt.Sprintf("max_download_attempts: must be at least 1, got %d", c.MaxDownloadAttempts))
	}
	if c.HashWorkers < 1 {
		errs = append(errs, fmt.Sprintf("hash_workers: must be at least 1, got %d", c.HashWorkers))
	}
	if c.SettleDelay < 0 || c.ReadyDelay < 0 {
		errs = append(errs, "settle_delay and ready_delay must not be negative")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log_format: %q must be text or json", c.LogFormat))
	}
	return errs
}
