package mission

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/openbracket/gdrb/internal/client"
	"github.com/openbracket/gdrb/internal/db"
)

// defaultStepTimeout bounds a single bridge call. wait_for steps that
// need longer carry their own timeout_ms.
const defaultStepTimeout = 30 * time.Second

// bridgeCaller is the slice of client.Client the runner needs. Tests
// substitute a scripted fake.
type bridgeCaller interface {
	Call(ctx context.Context, cmd string, args map[string]any) (client.Result, error)
}

// StepResult captures one executed step for reporting and history.
type StepResult struct {
	Seq      int
	Name     string
	Cmd      string
	Status   string // passed, failed, skipped
	Detail   string
	Duration time.Duration
	DiffPct  *float64
	Artifact string
}

// Result is the outcome of one mission run.
type Result struct {
	Mission    string
	Status     string // passed, failed, aborted
	StartedAt  time.Time
	Duration   time.Duration
	Steps      []StepResult
	ReportFile string
	RunID      int64 // 0 when history is disabled
}

// Runner executes missions against a connected bridge. History and
// Clock are optional; a nil Clock means wall time.
type Runner struct {
	Bridge  bridgeCaller
	History *db.DB
	Log     *slog.Logger
	Clock   clock.Clock
}

func (r *Runner) clk() clock.Clock {
	if r.Clock != nil {
		return r.Clock
	}
	return clock.New()
}

func (r *Runner) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Execute runs every step in order. An expectation failure marks the
// step failed and continues; a transport error aborts the remainder.
// The Markdown report is written next to the mission file, and the run
// is recorded in history when a database is attached.
func (r *Runner) Execute(ctx context.Context, m *Mission) (*Result, error) {
	started := r.clk().Now()
	result := &Result{
		Mission:   m.Name,
		Status:    "passed",
		StartedAt: started,
	}

	var runID int64
	if r.History != nil {
		id, err := r.History.InsertRun(&db.Run{
			Mission:    m.Name,
			Status:     "running",
			StartedAt:  started.UTC().Format(time.RFC3339),
			StepsTotal: len(m.Steps),
		})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
		runID = id
		result.RunID = id
	}

	aborted := false
	for i, step := range m.Steps {
		if aborted {
			result.Steps = append(result.Steps, StepResult{
				Seq:    i,
				Name:   step.label(),
				Cmd:    step.Cmd,
				Status: "skipped",
				Detail: "run aborted",
			})
			continue
		}
		sr, abort := r.runStep(ctx, m, i, step)
		result.Steps = append(result.Steps, sr)
		if sr.Status == "failed" {
			result.Status = "failed"
		}
		if abort {
			aborted = true
			result.Status = "aborted"
		}
	}
	result.Duration = r.clk().Since(started)

	if m.Path != "" {
		path := reportPath(m.Path)
		if err := WriteMarkdown(result, path); err != nil {
			r.log().Warn("report write failed", "path", path, "err", err)
		} else {
			result.ReportFile = path
		}
	}

	if r.History != nil {
		r.recordHistory(runID, result)
	}

	r.log().Info("mission finished",
		"mission", m.Name,
		"status", result.Status,
		"steps", len(result.Steps),
		"duration", result.Duration)
	return result, nil
}

// runStep wraps stepOutcome with duration stamping.
func (r *Runner) runStep(ctx context.Context, m *Mission, seq int, step Step) (StepResult, bool) {
	begin := r.clk().Now()
	sr, abort := r.stepOutcome(ctx, m, seq, step)
	sr.Duration = r.clk().Since(begin)
	return sr, abort
}

func (r *Runner) stepOutcome(ctx context.Context, m *Mission, seq int, step Step) (StepResult, bool) {
	sr := StepResult{Seq: seq, Name: step.label(), Cmd: step.Cmd, Status: "passed"}

	if step.SleepMS > 0 {
		r.clk().Sleep(time.Duration(step.SleepMS) * time.Millisecond)
		return sr, false
	}

	timeout := defaultStepTimeout
	if step.TimeoutMS > 0 {
		timeout = time.Duration(step.TimeoutMS) * time.Millisecond
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r.log().Debug("mission step", "seq", seq, "cmd", step.Cmd)
	res, err := r.Bridge.Call(callCtx, step.Cmd, step.Args)
	if err != nil {
		sr.Status = "failed"
		sr.Detail = fmt.Sprintf("transport: %v", err)
		return sr, true
	}

	if ok, detail := step.Expect.match(res); !ok {
		sr.Status = "failed"
		sr.Detail = detail
		return sr, false
	}

	if step.Cmd == "screenshot" && res.Err == nil {
		if err := r.handleScreenshot(m, step, res, &sr); err != nil {
			sr.Status = "failed"
			sr.Detail = err.Error()
		}
	}
	return sr, false
}

// handleScreenshot saves the captured PNG and diffs it against the
// golden image when the step asks for either. Artifact paths are kept
// relative to the mission directory so report links stay portable.
func (r *Runner) handleScreenshot(m *Mission, step Step, res client.Result, sr *StepResult) error {
	encoded, _ := res.Data["png_base64"].(string)
	if encoded == "" {
		return errors.New("screenshot reply had no png_base64")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}

	dir := filepath.Dir(m.Path)
	if step.Save != "" {
		if err := os.WriteFile(filepath.Join(dir, step.Save), raw, 0644); err != nil {
			return fmt.Errorf("save %s: %w", step.Save, err)
		}
		sr.Artifact = step.Save
	}

	if step.DiffAgainst != "" {
		golden, err := os.ReadFile(filepath.Join(dir, step.DiffAgainst))
		if err != nil {
			return fmt.Errorf("golden %s: %w", step.DiffAgainst, err)
		}
		threshold := step.DiffThreshold
		if threshold <= 0 {
			threshold = DefaultDiffThreshold
		}
		pct, err := DiffPNG(raw, golden, threshold)
		if err != nil {
			return fmt.Errorf("diff against %s: %w", step.DiffAgainst, err)
		}
		sr.DiffPct = &pct
		if pct > step.MaxDiffPct {
			return fmt.Errorf("screenshot differs from %s by %.2f%% (budget %.2f%%)", step.DiffAgainst, pct, step.MaxDiffPct)
		}
	}
	return nil
}

// recordHistory persists the per-step rows and the final run outcome.
// History failures are logged, never fatal: the report on disk is the
// primary artifact.
func (r *Runner) recordHistory(runID int64, result *Result) {
	failed := 0
	for _, sr := range result.Steps {
		if sr.Status == "failed" {
			failed++
		}
		step := &db.RunStep{
			RunID:      runID,
			Seq:        sr.Seq,
			Name:       sr.Name,
			Status:     sr.Status,
			DurationMs: sr.Duration.Milliseconds(),
			DiffPct:    sr.DiffPct,
		}
		if sr.Cmd != "" {
			cmd := sr.Cmd
			step.Cmd = &cmd
		}
		if sr.Detail != "" {
			detail := sr.Detail
			step.Detail = &detail
		}
		if sr.Artifact != "" {
			artifact := sr.Artifact
			step.Artifact = &artifact
		}
		if _, err := r.History.InsertStep(step); err != nil {
			r.log().Warn("step history insert failed", "run", runID, "seq", sr.Seq, "err", err)
		}
	}

	endedAt := result.StartedAt.Add(result.Duration).UTC().Format(time.RFC3339)
	var report *string
	if result.ReportFile != "" {
		report = &result.ReportFile
	}
	if err := r.History.FinishRun(runID, result.Status, endedAt, result.Duration.Milliseconds(), failed, report); err != nil {
		r.log().Warn("run history finish failed", "run", runID, "err", err)
	}
}
