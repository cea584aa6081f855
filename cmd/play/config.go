package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Output sinks.
const (
	SinkOto   = "oto"
	SinkMalgo = "malgo"
	SinkALSA  = "alsa"
	SinkWAV   = "wav"
	SinkNull  = "null"
)

// Config holds the player settings, merged from defaults, the config file, the environment and flags.
type Config struct {
	Sink     string  `mapstructure:"sink"`
	Device   string  `mapstructure:"device"`
	Out      string  `mapstructure:"out"`
	Frames   uint32  `mapstructure:"frames"`
	Voices   int     `mapstructure:"voices"`
	Realtime bool    `mapstructure:"realtime"`
	Volume   float64 `mapstructure:"volume"`
	Verbose  bool    `mapstructure:"verbose"`

	ALSA ALSAConfig `mapstructure:"alsa"`
}

// ALSAConfig holds the hardware sink period settings.
type ALSAConfig struct {
	PeriodSize  uint32 `mapstructure:"period_size"`
	PeriodCount uint32 `mapstructure:"period_count"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("play", pflag.ContinueOnError)

	fs.StringP("config", "c", "", "Config file (yaml, toml, json or ini)")
	fs.StringP("sink", "s", SinkOto, "Output sink: oto, malgo, alsa, wav or null")
	fs.StringP("device", "d", "hw:0,0", "ALSA device for the alsa sink")
	fs.StringP("out", "o", "out.wav", "Output file for the wav sink")
	fs.Uint32P("frames", "f", 1024, "Sample frames per wave buffer")
	fs.Int("voices", 24, "Renderer voice count")
	fs.Bool("realtime", false, "Pace the renderer to the frame clock")
	fs.Float64("volume", 1.0, "Output gain")
	fs.BoolP("verbose", "v", false, "Debug logging")
	fs.Uint32("period-size", 1024, "ALSA period size in frames")
	fs.Uint32("period-count", 4, "ALSA period count")
	fs.BoolP("list", "l", false, "List ALSA playback devices and exit")

	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sink", SinkOto)
	v.SetDefault("device", "hw:0,0")
	v.SetDefault("out", "out.wav")
	v.SetDefault("frames", 1024)
	v.SetDefault("voices", 24)
	v.SetDefault("realtime", false)
	v.SetDefault("volume", 1.0)
	v.SetDefault("verbose", false)
	v.SetDefault("alsa.period_size", 1024)
	v.SetDefault("alsa.period_count", 4)
}

// loadConfig reads the optional config file and overlays the environment and the flags that were set.
func loadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUDREN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"sink":              "sink",
		"device":            "device",
		"out":               "out",
		"frames":            "frames",
		"voices":            "voices",
		"realtime":          "realtime",
		"volume":            "volume",
		"verbose":           "verbose",
		"alsa.period_size":  "period-size",
		"alsa.period_count": "period-count",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Sink {
	case SinkOto, SinkMalgo, SinkALSA, SinkWAV, SinkNull:
	default:
		return fmt.Errorf("unknown sink %q", cfg.Sink)
	}

	if cfg.Frames == 0 {
		return fmt.Errorf("frames must be positive")
	}

	if cfg.Voices <= 0 {
		return fmt.Errorf("voices must be positive")
	}

	if cfg.Volume < 0 || cfg.Volume > 4 {
		return fmt.Errorf("volume %.2f out of range [0, 4]", cfg.Volume)
	}

	if cfg.Sink == SinkWAV && cfg.Out == "" {
		return fmt.Errorf("wav sink needs an output file")
	}

	if cfg.Sink == SinkALSA && cfg.Device == "" {
		return fmt.Errorf("alsa sink needs a device")
	}

	return nil
}
