// Package executor turns job definitions into OS processes and captures
// their output line by line.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Scanner buffer bounds. A single output line longer than maxLineBytes
// is truncated by the scanner rather than crashing the run.
const (
	initialLineBytes = 64 * 1024
	maxLineBytes     = 1024 * 1024
)

// Spec is a fully resolved process invocation.
type Spec struct {
	Argv    []string
	Dir     string
	Env     map[string]string // overlaid on the worker's environment
	Timeout time.Duration     // 0 means no deadline
}

// Result captures one attempt. Killed marks a timeout or cancellation;
// the output fields hold whatever was produced before the kill.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Killed   bool
}

// LineFunc receives each output line as it appears. Stream is "stdout"
// or "stderr". It may be called from two goroutines at once.
type LineFunc func(stream, text string)

type Runner struct {
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger.With("component", "executor")}
}

// Run starts the process and waits for it. On deadline expiry the whole
// process group is killed and the partial output is returned with
// Killed=true and exit code -1.
func (r *Runner) Run(ctx context.Context, spec Spec, onLine LineFunc) (Result, error) {
	if len(spec.Argv) == 0 {
		return Result{ExitCode: -1}, errors.New("empty argv")
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = overlayEnv(os.Environ(), spec.Env)
	setProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stderr pipe: %w", err)
	}

	var outBuf, errBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go scanLines(&wg, stdout, "stdout", &outBuf, onLine)
	go scanLines(&wg, stderr, "stderr", &errBuf, onLine)

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}

	// Drain both pipes before Wait so no output is lost.
	done := make(chan error, 1)
	go func() {
		wg.Wait()
		done <- cmd.Wait()
	}()

	killed := false
	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
		killProcessGroup(cmd)
		killed = true
		r.logger.WarnContext(ctx, "process killed", "argv0", spec.Argv[0], "reason", runCtx.Err())
		waitErr = <-done
	}

	res := Result{
		Stdout: outBuf.String(),
		Stderr: errBuf.String(),
		Killed: killed,
	}
	if killed {
		res.ExitCode = -1
		return res, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("wait %s: %w", spec.Argv[0], waitErr)
	}
	return res, nil
}

func scanLines(wg *sync.WaitGroup, pipe io.Reader, stream string, buf *strings.Builder, onLine LineFunc) {
	defer wg.Done()

	sc := bufio.NewScanner(pipe)
	sc.Buffer(make([]byte, 0, initialLineBytes), maxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onLine != nil {
			onLine(stream, line)
		}
	}
}

// overlayEnv merges the overlay into the base environment. Overlaid keys
// replace base entries instead of shadowing them, since getenv takes the
// first match on most platforms.
func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}

	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, shadowed := overlay[key]; shadowed {
			continue
		}
		env = append(env, kv)
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}

// resolveDir picks the working directory: an absolute workdir wins, a
// relative one resolves against the source checkout when present.
func resolveDir(workdir, baseDir string) string {
	switch {
	case workdir == "":
		return baseDir
	case filepath.IsAbs(workdir):
		return workdir
	case baseDir != "":
		return filepath.Join(baseDir, workdir)
	default:
		return workdir
	}
}
