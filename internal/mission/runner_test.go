package mission

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/db"
)

// --- Fake Bridge ---

type fakeBridge struct {
	replies     map[string]client.Result
	errs        map[string]error
	calls       []string
	hadDeadline bool
}

func (f *fakeBridge) Call(ctx context.Context, cmd string, args map[string]any) (client.Result, error) {
	f.calls = append(f.calls, cmd)
	if _, ok := ctx.Deadline(); ok {
		f.hadDeadline = true
	}
	if err, ok := f.errs[cmd]; ok {
		return client.Result{}, err
	}
	if res, ok := f.replies[cmd]; ok {
		return res, nil
	}
	return client.Result{OK: true, Data: map[string]any{}}, nil
}

// --- Helpers ---

func okReply(data map[string]any) client.Result {
	return client.Result{OK: true, Data: data}
}

func errReply(code, message string) client.Result {
	return client.Result{Err: &client.Err{Code: code, Message: message}}
}

// testMission places the mission file path inside a temp dir so reports
// and artifacts have somewhere to land.
func testMission(t *testing.T, steps ...Step) *Mission {
	t.Helper()
	return &Mission{
		Name:  "smoke",
		Steps: steps,
		Path:  filepath.Join(t.TempDir(), "smoke.json"),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func solidPNG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func screenshotReply(t *testing.T, pngData []byte) client.Result {
	t.Helper()
	return okReply(map[string]any{
		"png_base64": base64.StdEncoding.EncodeToString(pngData),
		"width":      float64(4),
		"height":     float64(4),
	})
}

// --- Tests ---

func TestExecute_AllStepsPass(t *testing.T) {
	bridge := &fakeBridge{}
	m := testMission(t,
		Step{Cmd: "ping"},
		Step{SleepMS: 1},
		Step{Cmd: "runtime_info"},
	)
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "passed" {
		t.Errorf("status = %q, want passed", result.Status)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(result.Steps))
	}
	for _, sr := range result.Steps {
		if sr.Status != "passed" {
			t.Errorf("step %d status = %q, want passed", sr.Seq, sr.Status)
		}
	}
	if got := strings.Join(bridge.calls, ","); got != "ping,runtime_info" {
		t.Errorf("bridge calls = %q", got)
	}
	if !bridge.hadDeadline {
		t.Error("bridge calls carried no deadline")
	}
	if result.ReportFile == "" {
		t.Fatal("no report file recorded")
	}
	report, err := os.ReadFile(result.ReportFile)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(report), "**PASSED**") {
		t.Errorf("report missing status line:\n%s", report)
	}
}

func TestExecute_ExpectationFailureContinues(t *testing.T) {
	bridge := &fakeBridge{
		replies: map[string]client.Result{
			"get_property": okReply(map[string]any{"value": "idle"}),
		},
	}
	m := testMission(t,
		Step{Cmd: "get_property", Args: map[string]any{"node": "/root/Foo", "property": "state"},
			Expect: &Expect{Fields: map[string]any{"value": "done"}}},
		Step{Cmd: "ping"},
	)
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "failed" {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if result.Steps[0].Status != "failed" {
		t.Errorf("step 0 status = %q, want failed", result.Steps[0].Status)
	}
	if !strings.Contains(result.Steps[0].Detail, `field "value"`) {
		t.Errorf("step 0 detail = %q", result.Steps[0].Detail)
	}
	if result.Steps[1].Status != "passed" {
		t.Errorf("step 1 status = %q, want passed (run should continue)", result.Steps[1].Status)
	}
	if len(bridge.calls) != 2 {
		t.Errorf("bridge calls = %v, want both steps executed", bridge.calls)
	}
}

func TestExecute_TransportErrorAborts(t *testing.T) {
	bridge := &fakeBridge{
		errs: map[string]error{"scene_tree": errors.New("connection reset")},
	}
	m := testMission(t,
		Step{Cmd: "ping"},
		Step{Cmd: "scene_tree"},
		Step{Cmd: "runtime_info"},
		Step{SleepMS: 1},
	)
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "aborted" {
		t.Errorf("status = %q, want aborted", result.Status)
	}
	if result.Steps[1].Status != "failed" || !strings.Contains(result.Steps[1].Detail, "transport") {
		t.Errorf("step 1 = %+v", result.Steps[1])
	}
	for _, sr := range result.Steps[2:] {
		if sr.Status != "skipped" || sr.Detail != "run aborted" {
			t.Errorf("step %d = %q/%q, want skipped/run aborted", sr.Seq, sr.Status, sr.Detail)
		}
	}
	if got := strings.Join(bridge.calls, ","); got != "ping,scene_tree" {
		t.Errorf("bridge calls = %q, want no calls after abort", got)
	}
}

func TestExecute_ExpectedErrorPasses(t *testing.T) {
	bridge := &fakeBridge{
		replies: map[string]client.Result{
			"eval": errReply("forbidden", "tier 3 required"),
		},
	}
	m := testMission(t,
		Step{Cmd: "eval", Args: map[string]any{"expr": "1+1"},
			Expect: &Expect{OK: boolPtr(false), Code: "forbidden"}},
	)
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "passed" {
		t.Errorf("status = %q, want passed", result.Status)
	}
}

func TestExecute_ScreenshotSavesArtifact(t *testing.T) {
	shot := solidPNG(t, 4, 4, color.RGBA{40, 80, 120, 255})
	bridge := &fakeBridge{
		replies: map[string]client.Result{"screenshot": screenshotReply(t, shot)},
	}
	m := testMission(t, Step{Cmd: "screenshot", Save: "shot.png"})
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "passed" {
		t.Fatalf("status = %q: %+v", result.Status, result.Steps)
	}
	if result.Steps[0].Artifact != "shot.png" {
		t.Errorf("artifact = %q, want shot.png", result.Steps[0].Artifact)
	}
	saved, err := os.ReadFile(filepath.Join(filepath.Dir(m.Path), "shot.png"))
	if err != nil {
		t.Fatalf("read saved screenshot: %v", err)
	}
	if !bytes.Equal(saved, shot) {
		t.Error("saved screenshot does not match captured bytes")
	}
}

func TestExecute_ScreenshotDiffWithinBudget(t *testing.T) {
	shot := solidPNG(t, 4, 4, color.RGBA{40, 80, 120, 255})
	bridge := &fakeBridge{
		replies: map[string]client.Result{"screenshot": screenshotReply(t, shot)},
	}
	m := testMission(t, Step{Cmd: "screenshot", DiffAgainst: "golden.png"})
	if err := os.WriteFile(filepath.Join(filepath.Dir(m.Path), "golden.png"), shot, 0644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "passed" {
		t.Fatalf("status = %q: %+v", result.Status, result.Steps)
	}
	if result.Steps[0].DiffPct == nil || *result.Steps[0].DiffPct != 0 {
		t.Errorf("diff pct = %v, want 0", result.Steps[0].DiffPct)
	}
}

func TestExecute_ScreenshotDiffOverBudgetFails(t *testing.T) {
	shot := solidPNG(t, 4, 4, color.RGBA{40, 80, 120, 255})
	golden := solidPNG(t, 4, 4, color.RGBA{200, 10, 10, 255})
	bridge := &fakeBridge{
		replies: map[string]client.Result{"screenshot": screenshotReply(t, shot)},
	}
	m := testMission(t, Step{Cmd: "screenshot", DiffAgainst: "golden.png", MaxDiffPct: 1})
	if err := os.WriteFile(filepath.Join(filepath.Dir(m.Path), "golden.png"), golden, 0644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "failed" {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	sr := result.Steps[0]
	if sr.DiffPct == nil || *sr.DiffPct != 100 {
		t.Errorf("diff pct = %v, want 100", sr.DiffPct)
	}
	if !strings.Contains(sr.Detail, "differs from golden.png") {
		t.Errorf("detail = %q", sr.Detail)
	}
}

func TestExecute_ScreenshotWithoutPayloadFails(t *testing.T) {
	bridge := &fakeBridge{
		replies: map[string]client.Result{"screenshot": okReply(map[string]any{"width": float64(4)})},
	}
	m := testMission(t, Step{Cmd: "screenshot", Save: "shot.png"})
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Steps[0].Status != "failed" || !strings.Contains(result.Steps[0].Detail, "png_base64") {
		t.Errorf("step = %+v", result.Steps[0])
	}
}

func TestExecute_RecordsHistory(t *testing.T) {
	history, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history db: %v", err)
	}
	defer history.Close() //nolint:errcheck

	bridge := &fakeBridge{
		replies: map[string]client.Result{
			"get_property": errReply("not_found", "no node at /root/Gone"),
		},
	}
	m := testMission(t,
		Step{Cmd: "ping"},
		Step{Cmd: "get_property", Args: map[string]any{"node": "/root/Gone", "property": "state"}},
	)
	r := &Runner{Bridge: bridge, History: history, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.RunID == 0 {
		t.Fatal("no run id recorded")
	}

	run, err := history.GetRun(result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("run not found in history")
	}
	if run.Status != "failed" || run.StepsTotal != 2 || run.StepsFailed != 1 {
		t.Errorf("run = %+v", run)
	}
	if run.ReportFile == nil || *run.ReportFile != result.ReportFile {
		t.Errorf("report file = %v, want %q", run.ReportFile, result.ReportFile)
	}

	steps, err := history.ListSteps(result.RunID)
	if err != nil {
		t.Fatalf("ListSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	if steps[0].Name != "ping" || steps[0].Status != "passed" {
		t.Errorf("step 0 = %+v", steps[0])
	}
	if steps[1].Status != "failed" || steps[1].Detail == nil {
		t.Errorf("step 1 = %+v", steps[1])
	}
}

func TestExecute_NoHistoryNoReportPath(t *testing.T) {
	bridge := &fakeBridge{}
	m := &Mission{Name: "inline", Steps: []Step{{Cmd: "ping"}}}
	r := &Runner{Bridge: bridge, Log: quietLogger()}

	result, err := r.Execute(context.Background(), m)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ReportFile != "" {
		t.Errorf("report file = %q, want none for pathless mission", result.ReportFile)
	}
	if result.RunID != 0 {
		t.Errorf("run id = %d, want 0 without history", result.RunID)
	}
}
