package mcpconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeTestJSON(t *testing.T, path string, data map[string]any) {
	t.Helper()
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent: %v", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func readTestJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return result
}

func serverBlock(t *testing.T, config map[string]any, name string) map[string]any {
	t.Helper()
	servers, _ := config["mcpServers"].(map[string]any)
	if servers == nil {
		t.Fatal("config has no mcpServers")
	}
	block, _ := servers[name].(map[string]any)
	if block == nil {
		t.Fatalf("config has no %s server entry", name)
	}
	return block
}

func TestInstall_CreatesConfigWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()
	mcpPath := filepath.Join(tmpDir, "mcp.json")

	entry := ServerEntry{Command: "/usr/local/bin/gdrb", Args: []string{"mcp", "--port", "55555"}}
	if err := Install(mcpPath, entry); err != nil {
		t.Fatalf("Install: %v", err)
	}

	block := serverBlock(t, readTestJSON(t, mcpPath), "gdrb")
	if block["command"] != "/usr/local/bin/gdrb" {
		t.Errorf("unexpected command: %v", block["command"])
	}
	args, _ := block["args"].([]any)
	if len(args) != 3 || args[0] != "mcp" {
		t.Errorf("unexpected args: %v", block["args"])
	}

	// No pre-existing config means no baseline to snapshot.
	if _, err := os.Stat(mcpPath + ".baseline"); !os.IsNotExist(err) {
		t.Error("baseline should not exist for a fresh config")
	}
}

func TestInstall_SavesBaseline(t *testing.T) {
	tmpDir := t.TempDir()
	mcpPath := filepath.Join(tmpDir, "mcp.json")

	writeTestJSON(t, mcpPath, map[string]any{
		"mcpServers": map[string]any{
			"docker": map[string]any{"command": "docker-mcp"},
		},
	})

	if err := Install(mcpPath, ServerEntry{Command: "gdrb"}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	baseline := readTestJSON(t, mcpPath+".baseline")
	servers, _ := baseline["mcpServers"].(map[string]any)
	if servers == nil || servers["docker"] == nil {
		t.Fatal("baseline does not contain the original mcpServers")
	}
	if servers["gdrb"] != nil {
		t.Fatal("baseline must predate the gdrb entry")
	}
}

func TestInstall_PreservesExistingServers(t *testing.T) {
	tmpDir := t.TempDir()
	mcpPath := filepath.Join(tmpDir, "mcp.json")

	writeTestJSON(t, mcpPath, map[string]any{
		"mcpServers": map[string]any{
			"docker": map[string]any{"command": "docker-mcp"},
		},
		"theme": "dark",
	})

	if err := Install(mcpPath, ServerEntry{Command: "gdrb"}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	got := readTestJSON(t, mcpPath)
	if got["theme"] != "dark" {
		t.Error("unrelated top-level keys must survive the install")
	}
	serverBlock(t, got, "docker")
	serverBlock(t, got, "gdrb")
}

func TestInstall_RewritesFromBaseline(t *testing.T) {
	tmpDir := t.TempDir()
	mcpPath := filepath.Join(tmpDir, "mcp.json")

	writeTestJSON(t, mcpPath, map[string]any{
		"mcpServers": map[string]any{
			"docker": map[string]any{"command": "docker-mcp"},
		},
	})

	if err := Install(mcpPath, ServerEntry{Command: "gdrb", Args: []string{"mcp", "--port", "1111"}}); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	if err := Install(mcpPath, ServerEntry{Command: "gdrb", Args: []string{"mcp", "--port", "2222"}}); err != nil {
		t.Fatalf("second Install: %v", err)
	}

	block := serverBlock(t, readTestJSON(t, mcpPath), "gdrb")
	args, _ := block["args"].([]any)
	if len(args) != 3 || args[2] != "2222" {
		t.Errorf("second install must replace the entry, got args %v", block["args"])
	}

	// The baseline still reflects the pre-install config.
	baseline := readTestJSON(t, mcpPath+".baseline")
	servers, _ := baseline["mcpServers"].(map[string]any)
	if servers["gdrb"] != nil {
		t.Error("baseline must stay untouched across installs")
	}
}

func TestInstall_EnvRoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	mcpPath := filepath.Join(tmpDir, "mcp.json")

	entry := ServerEntry{
		Command: "gdrb",
		Args:    []string{"mcp", "--port", "55555"},
		Env:     map[string]string{"GDRB_TOKEN": "abc"},
	}
	if err := Install(mcpPath, entry); err != nil {
		t.Fatalf("Install: %v", err)
	}

	block := serverBlock(t, readTestJSON(t, mcpPath), "gdrb")
	env, _ := block["env"].(map[string]any)
	if env == nil || env["GDRB_TOKEN"] != "abc" {
		t.Errorf("env did not round-trip: %v", block["env"])
	}
}

func TestInstall_MalformedConfigFails(t *testing.T) {
	tmpDir := t.TempDir()
	mcpPath := filepath.Join(tmpDir, "mcp.json")

	if err := os.WriteFile(mcpPath, []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := Install(mcpPath, ServerEntry{Command: "gdrb"}); err == nil {
		t.Fatal("expected an error for a malformed config")
	}
}
