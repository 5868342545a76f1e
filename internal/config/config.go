// Package config loads protopuzzles configuration from a config file,
// environment variables, and command-line flags (in that order of
// increasing precedence), validates it, and exposes the LRCP timers as
// live-reloadable values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"protopuzzles/internal/lrcp"
)

// Ports holds the listening port for each puzzle solver.
type Ports struct {
	LRCP      int `mapstructure:"lrcp" validate:"gte=1,lte=65535"`
	Echo      int `mapstructure:"echo" validate:"gte=1,lte=65535"`
	Prime     int `mapstructure:"prime" validate:"gte=1,lte=65535"`
	Mean      int `mapstructure:"mean" validate:"gte=1,lte=65535"`
	Chat      int `mapstructure:"chat" validate:"gte=1,lte=65535"`
	KV        int `mapstructure:"kv" validate:"gte=1,lte=65535"`
	MITM      int `mapstructure:"mitm" validate:"gte=1,lte=65535"`
	JobCentre int `mapstructure:"jobcentre" validate:"gte=1,lte=65535"`
	Metrics   int `mapstructure:"metrics" validate:"gte=1,lte=65535"`
}

// Config is the validated shape of protopuzzles.yaml plus its
// environment/flag overrides.
type Config struct {
	Ports        Ports         `mapstructure:"ports" validate:"required"`
	LogLevel     string        `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	MITMUpstream string        `mapstructure:"mitm_upstream" validate:"required,hostname_port"`
	Retransmit   time.Duration `mapstructure:"retransmit" validate:"gt=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
}

func defaults() Config {
	return Config{
		Ports: Ports{
			LRCP: 4321, Echo: 3330, Prime: 3331, Mean: 3332,
			Chat: 3333, KV: 3334, MITM: 3335, JobCentre: 3339,
			Metrics: 9090,
		},
		LogLevel:     "info",
		MITMUpstream: "chat.protohackers.com:16963",
		Retransmit:   3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Loader owns the viper instance, the validated Config, and the live
// Timers it keeps in sync with the config file.
type Loader struct {
	v      *viper.Viper
	timers *lrcp.Timers
}

// NewLoader builds a Loader, binds flags, reads the config file (if
// present), and validates the result.
func NewLoader(flags *pflag.FlagSet, configPath string) (*Loader, *Config, error) {
	v := viper.New()
	d := defaults()

	v.SetDefault("ports.lrcp", d.Ports.LRCP)
	v.SetDefault("ports.echo", d.Ports.Echo)
	v.SetDefault("ports.prime", d.Ports.Prime)
	v.SetDefault("ports.mean", d.Ports.Mean)
	v.SetDefault("ports.chat", d.Ports.Chat)
	v.SetDefault("ports.kv", d.Ports.KV)
	v.SetDefault("ports.mitm", d.Ports.MITM)
	v.SetDefault("ports.jobcentre", d.Ports.JobCentre)
	v.SetDefault("ports.metrics", d.Ports.Metrics)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("mitm_upstream", d.MITMUpstream)
	v.SetDefault("retransmit", d.Retransmit)
	v.SetDefault("idle_timeout", d.IdleTimeout)

	v.SetEnvPrefix("protopuzzles")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("protopuzzles")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/protopuzzles/")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	cfg, err := decodeAndValidate(v)
	if err != nil {
		return nil, nil, err
	}

	timers := lrcp.NewTimers()
	timers.SetRetransmit(cfg.Retransmit)
	timers.SetIdle(cfg.IdleTimeout)

	l := &Loader{v: v, timers: timers}
	return l, cfg, nil
}

func decodeAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Timers returns the live lrcp.Timers this Loader keeps retuned.
func (l *Loader) Timers() *lrcp.Timers { return l.timers }

// WatchAndReload re-reads the config file on every change and retunes
// Timers in place, so LRCP sessions pick up new values without a
// restart. onErr receives any decode/validation failure on reload; the
// previous valid values are kept.
func (l *Loader) WatchAndReload(onErr func(error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := decodeAndValidate(l.v)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		l.timers.SetRetransmit(cfg.Retransmit)
		l.timers.SetIdle(cfg.IdleTimeout)
	})
	l.v.WatchConfig()
}
