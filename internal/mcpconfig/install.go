// Package mcpconfig wires the gdrb MCP adapter into an MCP client's
// mcp.json. The first install snapshots the user's config to a
// .baseline file; every install rewrites from that baseline, so
// repeated installs replace the gdrb entry instead of layering stale
// copies.
package mcpconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ServerName is the key the gdrb entry is registered under.
const ServerName = "gdrb"

// ServerEntry is one server block inside mcpServers.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Install merges a gdrb server entry into the MCP config at configPath.
// A missing config file is created from scratch. An existing one is
// snapshotted to {configPath}.baseline on first install, and later
// installs rewrite from that snapshot.
func Install(configPath string, entry ServerEntry) error {
	baselinePath := configPath + ".baseline"

	if _, err := os.Stat(configPath); err == nil {
		if _, berr := os.Stat(baselinePath); os.IsNotExist(berr) {
			if err := copyFile(configPath, baselinePath); err != nil {
				return fmt.Errorf("saving baseline MCP config: %w", err)
			}
		}
	}

	merged := map[string]any{}
	if _, err := os.Stat(baselinePath); err == nil {
		m, err := readJSONFile(baselinePath)
		if err != nil {
			return fmt.Errorf("reading baseline MCP config: %w", err)
		}
		merged = m
	}

	servers, _ := merged["mcpServers"].(map[string]any)
	if servers == nil {
		servers = make(map[string]any)
	}
	servers[ServerName] = entry
	merged["mcpServers"] = servers

	if err := writeJSONFile(configPath, merged); err != nil {
		return fmt.Errorf("writing merged MCP config: %w", err)
	}
	return nil
}

// readJSONFile reads a JSON file into a generic map.
func readJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// writeJSONFile writes a map as indented JSON to a file.
func writeJSONFile(path string, data map[string]any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	return os.WriteFile(path, out, 0644)
}

// copyFile copies src to dst, preserving the source file's permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
