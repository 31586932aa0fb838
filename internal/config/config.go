// Package config reads the bridge's activation environment. Everything is
// env-driven: the bridge lives inside a game process and must not touch
// the host's flag or config-file handling.
package config

import (
	"github.com/spf13/viper"

	"github.com/openbracket/gdrb/internal/command"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Input routing modes.
const (
	InputModeSynthetic = "synthetic"
	InputModeOS        = "os"
)

// Config holds the session parameters resolved from GDRB_* environment
// variables at activation. Fields are fixed for the life of the process.
type Config struct {
	Token         string
	LegacyEnable  bool
	Port          int
	Tier          int
	DangerEnabled bool
	InputMode     string
	ForceWindowed bool
	BannerFile    string
}

// FromEnv resolves the configuration from the process environment. A
// dedicated viper instance keeps the lookup isolated from any viper state
// the host process may own.
func FromEnv() Config {
	v := viper.New()
	v.SetEnvPrefix("GDRB")
	v.SetDefault("port", 0)
	v.SetDefault("tier", command.TierInput)
	for _, key := range []string{"token", "port", "tier", "enable_danger", "input_mode", "force_windowed", "banner_file"} {
		_ = v.BindEnv(key)
	}
	// Pre-GDRB activation variable, kept for old launch scripts. Exact
	// name, no prefix.
	_ = v.BindEnv("legacy_enable", "GODOT_DEBUG_SERVER")

	mode := InputModeSynthetic
	if v.GetString("input_mode") == InputModeOS {
		mode = InputModeOS
	}
	return Config{
		Token:         v.GetString("token"),
		LegacyEnable:  v.GetString("legacy_enable") == "1",
		Port:          v.GetInt("port"),
		Tier:          command.ClampTier(v.GetInt("tier")),
		DangerEnabled: v.GetString("enable_danger") == "1",
		InputMode:     mode,
		ForceWindowed: v.GetString("force_windowed") == "1",
		BannerFile:    v.GetString("banner_file"),
	}
}

// Enabled reports whether the environment side of the activation gate
// holds: either an explicit token or the legacy flag.
func (c Config) Enabled() bool {
	return c.Token != "" || c.LegacyEnable
}
