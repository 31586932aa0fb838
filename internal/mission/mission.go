// Package mission runs scripted QA sequences against a live bridge. A
// mission is a JSON file naming the host to launch (or none, when
// attaching to a running one) and an ordered list of steps: bridge
// commands with reply expectations, screenshot captures with
// golden-image diffs, and plain sleeps.
package mission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/command"
)

// Mission is one parsed mission file.
type Mission struct {
	Name   string  `json:"name"`
	Launch *Launch `json:"launch,omitempty"`
	Steps  []Step  `json:"steps"`

	// Path records where the mission was loaded from. Reports and
	// screenshot artifacts land in its directory.
	Path string `json:"-"`
}

// Launch describes the host process a mission starts when it does not
// attach to a running bridge.
type Launch struct {
	Bin       string   `json:"bin"`
	Args      []string `json:"args,omitempty"`
	Tier      int      `json:"tier"`
	Danger    bool     `json:"danger,omitempty"`
	InputMode string   `json:"input_mode,omitempty"`
}

// Step is one mission step: either a bridge command (cmd plus args,
// expectation, and for screenshots the save/diff fields) or a pause
// (sleep_ms plus an optional note).
type Step struct {
	Cmd       string         `json:"cmd,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Expect    *Expect        `json:"expect,omitempty"`
	TimeoutMS int            `json:"timeout_ms,omitempty"`

	Save          string  `json:"save,omitempty"`
	DiffAgainst   string  `json:"diff_against,omitempty"`
	MaxDiffPct    float64 `json:"max_diff_pct,omitempty"`
	DiffThreshold int     `json:"diff_threshold,omitempty"`

	SleepMS int    `json:"sleep_ms,omitempty"`
	Note    string `json:"note,omitempty"`
}

// Expect constrains a step's bridge reply. A nil Expect means the call
// must simply succeed.
type Expect struct {
	OK     *bool          `json:"ok,omitempty"`
	Code   string         `json:"code,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Load reads and validates a mission file.
func Load(path string) (*Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mission: %w", err)
	}
	var m Mission
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse mission %s: %w", filepath.Base(path), err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("mission %s: name is required", filepath.Base(path))
	}
	if len(m.Steps) == 0 {
		return nil, fmt.Errorf("mission %q has no steps", m.Name)
	}
	for i, s := range m.Steps {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("mission %q step %d: %w", m.Name, i, err)
		}
	}
	m.Path = path
	return &m, nil
}

func (s Step) validate() error {
	if s.Cmd == "" && s.SleepMS <= 0 {
		return fmt.Errorf("needs cmd or sleep_ms")
	}
	if s.Cmd != "" && s.SleepMS > 0 {
		return fmt.Errorf("cmd and sleep_ms are mutually exclusive")
	}
	if s.Cmd != "" && !command.Known(s.Cmd) {
		return fmt.Errorf("unknown command %q", s.Cmd)
	}
	if (s.Save != "" || s.DiffAgainst != "") && s.Cmd != "screenshot" {
		return fmt.Errorf("save and diff_against apply only to screenshot steps")
	}
	if s.DiffAgainst == "" && s.MaxDiffPct != 0 {
		return fmt.Errorf("max_diff_pct needs diff_against")
	}
	return nil
}

// label is the step name shown in reports and history.
func (s Step) label() string {
	if s.Cmd != "" {
		return s.Cmd
	}
	if s.Note != "" {
		return fmt.Sprintf("sleep %dms (%s)", s.SleepMS, s.Note)
	}
	return fmt.Sprintf("sleep %dms", s.SleepMS)
}

// match checks a bridge reply against the expectation. The default is
// ok=true with no field constraints.
func (e *Expect) match(res client.Result) (bool, string) {
	wantOK := true
	if e != nil && e.OK != nil {
		wantOK = *e.OK
	}
	gotOK := res.Err == nil
	if gotOK != wantOK {
		if res.Err != nil {
			return false, fmt.Sprintf("expected ok=%v, got error %s: %s", wantOK, res.Err.Code, res.Err.Message)
		}
		return false, fmt.Sprintf("expected ok=%v, got success", wantOK)
	}
	if e == nil {
		return true, ""
	}
	if e.Code != "" {
		if res.Err == nil {
			return false, fmt.Sprintf("expected error code %s, got success", e.Code)
		}
		if res.Err.Code != e.Code {
			return false, fmt.Sprintf("expected error code %s, got %s", e.Code, res.Err.Code)
		}
	}
	for key, want := range e.Fields {
		got, present := res.Data[key]
		if !present {
			return false, fmt.Sprintf("field %q missing from reply", key)
		}
		if normalizeJSON(want) != normalizeJSON(got) {
			return false, fmt.Sprintf("field %q: expected %s, got %s", key, normalizeJSON(want), normalizeJSON(got))
		}
	}
	return true, ""
}

// normalizeJSON renders a decoded JSON value back to canonical JSON so
// values that differ only in in-memory shape compare equal.
func normalizeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// reportPath derives the report location from the mission file:
// missions/smoke.json becomes missions/smoke-report.md.
func reportPath(missionPath string) string {
	ext := filepath.Ext(missionPath)
	return strings.TrimSuffix(missionPath, ext) + "-report.md"
}
