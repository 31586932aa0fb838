package protocol

import (
	"strings"
	"testing"
)

func TestBannerRoundTrip(t *testing.T) {
	in := Banner{Proto: ProtoVersion, Port: 38471, Token: "abcDEF123", TierDefault: 2, InputMode: "synthetic"}
	line, err := in.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(line, BannerPrefix) {
		t.Fatalf("expected prefix, got %q", line)
	}
	out, ok := ParseBanner(line)
	if !ok {
		t.Fatalf("expected banner recognized")
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
}

func TestBannerFieldOrderStable(t *testing.T) {
	line, err := Banner{Proto: ProtoVersion, Port: 9, Token: "t", TierDefault: 1, InputMode: "os"}.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `GDRB_READY:{"proto":"grb/1","port":9,"token":"t","tier_default":1,"input_mode":"os"}`
	if line != want {
		t.Fatalf("expected %s, got %s", want, line)
	}
}

func TestParseBannerRejectsOtherOutput(t *testing.T) {
	for _, line := range []string{
		"loading level 1",
		"GDRB_READY:not json",
		`GDRB_READY:{"proto":"grb/2","port":9,"token":"t","tier_default":1,"input_mode":"os"}`,
		`GDRB_READY:{"proto":"grb/1","port":0,"token":"t","tier_default":1,"input_mode":"os"}`,
		"",
	} {
		if _, ok := ParseBanner(line); ok {
			t.Fatalf("expected %q rejected", line)
		}
	}
}

func TestParseBannerToleratesWhitespace(t *testing.T) {
	line, _ := Banner{Proto: ProtoVersion, Port: 5, Token: "t", TierDefault: 0, InputMode: "synthetic"}.Encode()
	if _, ok := ParseBanner("  " + line + "\r\n"); !ok {
		t.Fatalf("expected surrounding whitespace tolerated")
	}
}
