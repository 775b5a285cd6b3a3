package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/workspace"
	"github.com/wonny/newsdeck/backend/pkg/logger"
)

// Task names a project pipeline the runner may start.
type Task string

const (
	TaskTest   Task = "test"
	TaskReport Task = "report"
	TaskBuild  Task = "build"
)

// ErrUnknownTask is returned for task names outside the allow list.
var ErrUnknownTask = errors.New("unknown task")

// scripts maps tasks onto package scripts.
var scripts = map[Task]string{
	TaskTest:   "test",
	TaskReport: "test:report",
	TaskBuild:  "build",
}

// ParseTask validates a task name from user input.
func ParseTask(name string) (Task, error) {
	t := Task(name)
	if _, ok := scripts[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return t, nil
}

// Result is the verbatim outcome of one script run. Duration is in ms.
type Result struct {
	Task     Task    `json:"task"`
	Script   string  `json:"script"`
	Stdout   string  `json:"stdout"`
	Stderr   string  `json:"stderr"`
	ExitCode int     `json:"exitCode"`
	Duration float64 `json:"duration"`
}

// Runner executes `<bin> run <script>` in the project root
// ⭐ SSOT: 외부 명령 실행은 여기서만
type Runner struct {
	bin     string
	dir     string
	logger  *logger.Logger
	timings *workspace.Workspace
	logName string
	mu      sync.Mutex
}

// New creates a runner. dir is the working directory of every command.
func New(bin, dir string, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		bin:    bin,
		dir:    dir,
		logger: log,
	}
}

// WithTimings appends every run to the JSON-lines timing log name in ws.
func (r *Runner) WithTimings(ws *workspace.Workspace, name string) *Runner {
	r.timings = ws
	r.logName = name
	return r
}

// Run executes task and relays its output. A non-zero exit is reported in
// the result, not as an error; errors mean the command never ran.
func (r *Runner) Run(ctx context.Context, task Task) (*Result, error) {
	script, ok := scripts[task]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, "run", script)
	cmd.Dir = r.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := r.logger.WithFields(map[string]interface{}{
		"task":   task,
		"script": script,
	})
	log.Info("Running task")

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &Result{
		Task:     task,
		Script:   script,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: math.Round(float64(elapsed.Microseconds())/10) / 100,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		log.WithError(err).Error("Task failed to start")
		return nil, fmt.Errorf("run %s: %w", task, err)
	}

	log.WithFields(map[string]interface{}{
		"exit_code": result.ExitCode,
		"duration":  result.Duration,
	}).Info("Task finished")

	r.record(script, start, result)
	return result, nil
}

// record appends one line to the timing log. Failures are logged only.
func (r *Runner) record(script string, start time.Time, res *Result) {
	if r.timings == nil || r.logName == "" {
		return
	}

	line, err := json.Marshal(artifact.ScriptRun{
		Script:    script,
		Duration:  res.Duration,
		Timestamp: start.UTC(),
		ExitCode:  res.ExitCode,
	})
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.timings.ReadFile(r.logName)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		r.logger.WithError(err).Warn("Failed to read script timings")
		return
	}
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		existing = append(existing, '\n')
	}
	data := append(append(existing, line...), '\n')

	if err := r.timings.WriteFile(r.logName, data); err != nil {
		r.logger.WithError(err).Warn("Failed to record script timing")
	}
}
