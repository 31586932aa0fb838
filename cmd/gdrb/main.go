// Command gdrb is the workstation side of the bridge: it attaches to
// (or launches) a game process with the bridge armed, sends commands,
// runs scripted missions, and serves the whole command set as MCP
// tools for agent clients.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbracket/gdrb/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "gdrb",
		Short:         "Debug bridge client for live game processes",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		bindFlag(cmd.Root(), "verbose", "verbose")
		level := slog.LevelInfo
		if viper.GetBool("verbose") {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	rootCmd.AddCommand(mcpCmd(), missionCmd(), sendCmd(), installCmd())

	// Bind GDRB_* environment variables. AutomaticEnv with the prefix
	// maps GDRB_PORT -> "port", GDRB_SUMMARY_MODEL -> "summary_model",
	// etc. Flag names use hyphens, hence the replacer.
	viper.SetEnvPrefix("GDRB")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bindFlag connects a flag to its viper key. Bindings happen at run
// time, inside the executing subcommand, so same-named flags on
// sibling commands never fight over a key.
func bindFlag(cmd *cobra.Command, viperKey, flagName string) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(flagName)
	}
	_ = viper.BindPFlag(viperKey, flag)
}
