package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbracket/gdrb/internal/command"
	"github.com/openbracket/gdrb/internal/mcpconfig"
)

func installCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Register the MCP server in a client's mcp.json",
		Long: `Register the MCP server in a client's mcp.json.

The first install snapshots the existing config as a baseline;
reinstalls rewrite the gdrb entry from that baseline, so repeated
installs never stack stale entries.`,
		Args: cobra.NoArgs,
		RunE: runInstall,
	}
	f := cmd.Flags()
	f.String("config", ".mcp.json", "mcp.json to update")
	f.Int("port", 0, "bridge port the server should attach to")
	f.String("token", "", "session token (stored in the entry's env block)")
	f.String("bin", "", "host binary the server should launch instead")
	f.StringSlice("args", nil, "arguments for the launched host")
	f.Int("tier", command.TierInput, "capability tier for launch mode (0-3)")
	f.Bool("danger", false, "allow eval in launch mode")
	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"config": "config", "port": "port", "token": "token",
		"bin": "bin", "args": "args", "tier": "tier", "danger": "danger",
	} {
		bindFlag(cmd, key, flag)
	}

	port := viper.GetInt("port")
	bin := viper.GetString("bin")
	if port == 0 && bin == "" {
		return fmt.Errorf("either --port (attach) or --bin (launch) is required")
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own path: %w", err)
	}

	entry := mcpconfig.ServerEntry{Command: self, Args: []string{"mcp"}}
	if bin != "" {
		entry.Args = append(entry.Args, "--bin", bin)
		for _, a := range viper.GetStringSlice("args") {
			entry.Args = append(entry.Args, "--args", a)
		}
		entry.Args = append(entry.Args, "--tier", strconv.Itoa(command.ClampTier(viper.GetInt("tier"))))
		if viper.GetBool("danger") {
			entry.Args = append(entry.Args, "--danger")
		}
	} else {
		entry.Args = append(entry.Args, "--port", strconv.Itoa(port))
	}
	// Token goes in the env block, not argv.
	if token := viper.GetString("token"); token != "" {
		entry.Env = map[string]string{"GDRB_TOKEN": token}
	}

	configPath := viper.GetString("config")
	if err := mcpconfig.Install(configPath, entry); err != nil {
		return err
	}
	fmt.Printf("Registered %q in %s\n", mcpconfig.ServerName, configPath)
	return nil
}
