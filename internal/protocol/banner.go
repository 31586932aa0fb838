package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BannerPrefix starts the single readiness line the bridge prints to the
// host's stdout after binding. Launchers scan process output for it; it is
// their only discovery mechanism.
const BannerPrefix = "GDRB_READY:"

// Banner carries the connection parameters a client needs.
type Banner struct {
	Proto       string `json:"proto"`
	Port        int    `json:"port"`
	Token       string `json:"token"`
	TierDefault int    `json:"tier_default"`
	InputMode   string `json:"input_mode"`
}

// Encode renders the banner line without a trailing newline.
func (b Banner) Encode() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode banner: %w", err)
	}
	return BannerPrefix + string(data), nil
}

// ParseBanner recognizes a readiness line. It returns false for any other
// process output, including banners with a foreign protocol version.
func ParseBanner(line string) (Banner, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), BannerPrefix)
	if !ok {
		return Banner{}, false
	}
	var b Banner
	if err := json.Unmarshal([]byte(rest), &b); err != nil {
		return Banner{}, false
	}
	if b.Proto != ProtoVersion || b.Port <= 0 {
		return Banner{}, false
	}
	return b, true
}
