package mission

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// WriteMarkdown renders the run report and writes it to path.
func WriteMarkdown(result *Result, path string) error {
	return os.WriteFile(path, []byte(Markdown(result)), 0644)
}

// Markdown renders a run result as a GFM report with one table row per
// step.
func Markdown(result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Mission: %s\n\n", result.Mission)
	fmt.Fprintf(&b, "- Status: **%s**\n", strings.ToUpper(result.Status))
	fmt.Fprintf(&b, "- Started: %s\n", result.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", result.Duration.Round(time.Millisecond))

	failed := 0
	for _, sr := range result.Steps {
		if sr.Status == "failed" {
			failed++
		}
	}
	fmt.Fprintf(&b, "- Steps: %d total, %d failed\n\n", len(result.Steps), failed)

	b.WriteString("| # | Step | Status | Duration | Diff | Detail |\n")
	b.WriteString("|---|------|--------|----------|------|--------|\n")
	for _, sr := range result.Steps {
		name := sr.Name
		if sr.Artifact != "" {
			name = fmt.Sprintf("[%s](%s)", sr.Name, sr.Artifact)
		}
		diff := ""
		if sr.DiffPct != nil {
			diff = fmt.Sprintf("%.2f%%", *sr.DiffPct)
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			sr.Seq+1, name, sr.Status, sr.Duration.Round(time.Millisecond), diff, escapePipes(sr.Detail))
	}
	return b.String()
}

// RenderHTML converts a Markdown report to HTML for viewing outside a
// terminal.
func RenderHTML(md []byte) ([]byte, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := gm.Convert(md, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
