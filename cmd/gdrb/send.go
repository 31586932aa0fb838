package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/command"
)

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <command> [json-args]",
		Short: "Send one command to a running bridge and print the reply",
		Example: `  gdrb send ping --port 49637 --token a1b2...
  gdrb send get_property '{"node": "/root/Player", "property": "position"}' --port 49637 --token a1b2...`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSend,
	}
	f := cmd.Flags()
	f.Int("port", 0, "bridge port")
	f.String("token", "", "session token")
	f.Int("timeout", 30, "reply timeout in seconds")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	for key, flag := range map[string]string{
		"port": "port", "token": "token", "timeout": "timeout",
	} {
		bindFlag(cmd, key, flag)
	}

	name := args[0]
	if !command.Known(name) {
		return fmt.Errorf("unknown command %q", name)
	}
	var callArgs map[string]any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
			return fmt.Errorf("parse args: %w", err)
		}
	}

	port := viper.GetInt("port")
	if port == 0 {
		return fmt.Errorf("--port is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, fmt.Sprintf("127.0.0.1:%d", port), viper.GetString("token"))
	if err != nil {
		return err
	}
	defer conn.Close() //nolint:errcheck

	res, err := conn.Call(ctx, name, callArgs)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return fmt.Errorf("%s: %s", res.Err.Code, res.Err.Message)
	}
	out, err := json.MarshalIndent(res.Data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
