package logging

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nibzard/fanout/internal/parallel"
)

// Record types written to a run log.
const (
	RecordOutcome = "outcome"
	RecordSummary = "summary"
)

// OutcomeRecord is the JSONL form of one unit outcome.
type OutcomeRecord struct {
	Type       string            `json:"type"`
	Unit       string            `json:"unit"`
	Target     string            `json:"target"`
	Bindings   map[string]string `json:"bindings"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
	DurationMS int64             `json:"duration_ms"`
}

// SummaryRecord closes a run log.
type SummaryRecord struct {
	Type       string   `json:"type"`
	RunID      string   `json:"run_id"`
	Job        string   `json:"job,omitempty"`
	Entries    int      `json:"entries"`
	Files      int      `json:"files"`
	Dirs       int      `json:"dirs"`
	Skipped    int      `json:"skipped"`
	Dispatched int      `json:"dispatched"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	Peak       int      `json:"peak"`
	Lines      []string `json:"lines,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// RunLogger writes one JSONL file per run. It is safe for concurrent use;
// Observe is meant to be registered as a pool observer.
type RunLogger struct {
	Dir     string
	RunID   string
	LogPath string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	err  error
}

// NewRunLogger creates <baseDir>/<project-slug>/<run-id>.jsonl. The project
// is the git top level of workDir, or workDir itself.
func NewRunLogger(baseDir, workDir string) (*RunLogger, error) {
	logDir, err := FindLogDir(baseDir, workDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	id := runID()
	logPath := filepath.Join(logDir, id+".jsonl")
	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	return &RunLogger{
		Dir:     logDir,
		RunID:   id,
		LogPath: logPath,
		file:    file,
		enc:     json.NewEncoder(file),
	}, nil
}

// Observe records finished units. Other events are ignored.
func (r *RunLogger) Observe(ev parallel.Event) {
	if ev.Type != parallel.EventFinished || ev.Outcome == nil {
		return
	}
	out := ev.Outcome
	rec := OutcomeRecord{
		Type:       RecordOutcome,
		Unit:       out.Unit.String(),
		Target:     out.Unit.TargetName,
		Bindings:   out.Unit.Bindings(),
		Status:     string(out.Status),
		FinishedAt: out.FinishedAt.UTC(),
		DurationMS: out.Duration().Milliseconds(),
	}
	if !out.StartedAt.IsZero() {
		started := out.StartedAt.UTC()
		rec.StartedAt = &started
	}
	if out.Err != nil {
		rec.Error = out.Err.Error()
	}
	r.write(rec)
}

// Summary writes the closing record.
func (r *RunLogger) Summary(rec SummaryRecord) error {
	rec.Type = RecordSummary
	rec.RunID = r.RunID
	r.write(rec)
	return r.Err()
}

// Err returns the first write error, if any.
func (r *RunLogger) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *RunLogger) write(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil || r.enc == nil {
		return
	}
	if err := r.enc.Encode(v); err != nil {
		r.err = fmt.Errorf("write run log: %w", err)
	}
}

// Close closes the log file.
func (r *RunLogger) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.enc = nil
	return err
}

// FindLogDir returns the run log directory for workDir without creating it.
func FindLogDir(baseDir, workDir string) (string, error) {
	if baseDir == "" {
		return "", fmt.Errorf("log base dir is empty")
	}
	if workDir == "" {
		workDir = "."
	}
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	baseDir = resolveBaseDir(baseDir, workDir)
	return filepath.Join(baseDir, projectSlug(resolveProjectRoot(workDir))), nil
}

func resolveBaseDir(baseDir, workDir string) string {
	if filepath.IsAbs(baseDir) {
		return filepath.Clean(baseDir)
	}
	return filepath.Clean(filepath.Join(workDir, baseDir))
}

func resolveProjectRoot(workDir string) string {
	if _, err := exec.LookPath("git"); err == nil {
		cmd := exec.Command("git", "-C", workDir, "rev-parse", "--show-toplevel")
		if output, err := cmd.Output(); err == nil {
			if root := strings.TrimSpace(string(output)); root != "" {
				return filepath.Clean(root)
			}
		}
	}
	return workDir
}

func projectSlug(projectRoot string) string {
	return fmt.Sprintf("%s-%s", slugify(filepath.Base(projectRoot)), hashPath(projectRoot))
}

func slugify(input string) string {
	var b strings.Builder
	lastUnderscore := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		valid := (c >= 'A' && c <= 'Z') ||
			(c >= 'a' && c <= 'z') ||
			(c >= '0' && c <= '9') ||
			c == '.' || c == '_' || c == '-'
		if !valid {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		b.WriteByte(c)
		lastUnderscore = false
	}

	slug := strings.Trim(b.String(), "_")
	if slug == "" || slug == "." {
		return "project"
	}
	return slug
}

func hashPath(input string) string {
	sum := sha1.Sum([]byte(input))
	return hex.EncodeToString(sum[:])[:8]
}

func runID() string {
	return fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102-150405.000"), os.Getpid())
}
