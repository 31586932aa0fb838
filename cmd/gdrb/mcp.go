package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/command"
	"github.com/openbracket/gdrb/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve bridge commands as MCP tools over stdio",
		Long: `Serve bridge commands as MCP tools over stdio.

Attach mode (--port) talks to a bridge that is already listening.
Launch mode (--bin) starts the host with the bridge armed, adopts the
session from its startup banner, and asks the host to quit when the
MCP session ends.`,
		Args: cobra.NoArgs,
		RunE: runMCP,
	}
	f := cmd.Flags()
	f.Int("port", 0, "port of a running bridge (attach mode)")
	f.String("token", "", "session token")
	f.String("bin", "", "host binary to launch (launch mode)")
	f.StringSlice("args", nil, "arguments for the launched host")
	f.Int("tier", command.TierInput, "capability tier for launch mode (0-3)")
	f.Bool("danger", false, "allow eval in launch mode")
	f.String("input-mode", "", "input routing for launch mode (synthetic or os)")
	return cmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"port": "port", "token": "token", "bin": "bin", "args": "args",
		"tier": "tier", "danger": "danger", "input_mode": "input-mode",
	} {
		bindFlag(cmd, key, flag)
	}

	opts := mcpserver.Options{
		Port:  viper.GetInt("port"),
		Token: viper.GetString("token"),
	}
	if bin := viper.GetString("bin"); bin != "" {
		opts.Spec = client.LaunchSpec{
			Bin:       bin,
			Args:      viper.GetStringSlice("args"),
			Token:     viper.GetString("token"),
			Tier:      viper.GetInt("tier"),
			Danger:    viper.GetBool("danger"),
			InputMode: viper.GetString("input_mode"),
		}
	}
	if opts.Spec.Bin == "" && opts.Port == 0 {
		return fmt.Errorf("either --port (attach) or --bin (launch) is required")
	}
	return mcpserver.Run(opts)
}
