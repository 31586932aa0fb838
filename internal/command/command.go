// Package command defines the closed table of bridge commands and the
// capability tier each one requires. The set is fixed at compile time;
// nothing registers commands at runtime.
package command

import "sort"

// Capability tiers, lowest to highest. A session tier admits every command
// at or below it.
const (
	TierObserve = 0
	TierInput   = 1
	TierControl = 2
	TierDanger  = 3
)

// Spec describes one command's authorization and dispatch properties.
type Spec struct {
	Tier        int
	TokenExempt bool
	Async       bool
}

var table = map[string]Spec{
	// Observe: read-only.
	"ping":            {Tier: TierObserve, TokenExempt: true},
	"auth_info":       {Tier: TierObserve, TokenExempt: true},
	"capabilities":    {Tier: TierObserve},
	"screenshot":      {Tier: TierObserve},
	"scene_tree":      {Tier: TierObserve},
	"get_property":    {Tier: TierObserve},
	"runtime_info":    {Tier: TierObserve},
	"get_errors":      {Tier: TierObserve},
	"wait_for":        {Tier: TierObserve, Async: true},
	"find_nodes":      {Tier: TierObserve},
	"audio_state":     {Tier: TierObserve},
	"network_state":   {Tier: TierObserve},
	"grb_performance": {Tier: TierObserve},

	// Input: simulated devices.
	"click":        {Tier: TierInput},
	"key":          {Tier: TierInput},
	"press_button": {Tier: TierInput},
	"drag":         {Tier: TierInput},
	"scroll":       {Tier: TierInput},
	"gesture":      {Tier: TierInput},
	"gamepad":      {Tier: TierInput},

	// Control: state mutation.
	"set_property":       {Tier: TierControl},
	"call_method":        {Tier: TierControl},
	"quit":               {Tier: TierControl},
	"run_custom_command": {Tier: TierControl},

	// Danger: arbitrary expression evaluation, double-gated behind the
	// danger flag at dispatch.
	"eval": {Tier: TierDanger},
}

// Lookup returns the spec for name and whether name is a known command.
func Lookup(name string) (Spec, bool) {
	s, ok := table[name]
	return s, ok
}

// Known reports whether name is in the command table.
func Known(name string) bool {
	_, ok := table[name]
	return ok
}

// TokenExempt reports whether name may be invoked without the session
// token. Unknown names are never exempt.
func TokenExempt(name string) bool {
	return table[name].TokenExempt
}

// ForTier returns the sorted names of every command whose tier is at or
// below max.
func ForTier(max int) []string {
	names := make([]string, 0, len(table))
	for name, spec := range table {
		if spec.Tier <= max {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// ClampTier bounds t to the valid tier range.
func ClampTier(t int) int {
	if t < TierObserve {
		return TierObserve
	}
	if t > TierDanger {
		return TierDanger
	}
	return t
}
