package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/hydrajobs/hydra/internal/domain"
)

// Prepare resolves the job's executor config into a process spec. The
// returned cleanup removes any ephemeral environment (python venv) and
// must run after the last attempt, never between retries.
func (r *Runner) Prepare(ctx context.Context, job *domain.JobDefinition, baseDir string) (Spec, func(), error) {
	cleanup := func() {}
	var argv []string
	var err error

	cfg := job.Executor
	switch cfg.Type {
	case domain.ExecutorShell:
		argv = shellArgv(cfg)
	case domain.ExecutorBatch:
		argv = batchArgv(cfg)
	case domain.ExecutorPython:
		argv, cleanup, err = r.pythonArgv(ctx, job)
	case domain.ExecutorExternal:
		argv, err = externalArgv(cfg)
	default:
		err = fmt.Errorf("%w: unknown executor type %q", domain.ErrJobInvalid, cfg.Type)
	}
	if err != nil {
		return Spec{}, nil, err
	}

	return Spec{
		Argv:    argv,
		Dir:     resolveDir(cfg.Workdir, baseDir),
		Env:     cfg.Env,
		Timeout: time.Duration(job.TimeoutSeconds) * time.Second,
	}, cleanup, nil
}

func shellArgv(cfg domain.ExecutorConfig) []string {
	if runtime.GOOS == "windows" {
		return []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", cfg.Script}
	}
	shell := cfg.Shell
	if shell == "" {
		shell = "bash"
	}
	return []string{shell, "-lc", cfg.Script}
}

func batchArgv(cfg domain.ExecutorConfig) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/c", cfg.Script}
	}
	return []string{"bash", "-lc", cfg.Script}
}

func externalArgv(cfg domain.ExecutorConfig) ([]string, error) {
	words, err := shellquote.Split(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse command: %v", domain.ErrJobInvalid, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty command", domain.ErrJobInvalid)
	}
	return append(words, cfg.Args...), nil
}

func (r *Runner) pythonArgv(ctx context.Context, job *domain.JobDefinition) ([]string, func(), error) {
	cfg := job.Executor
	noop := func() {}

	interpreter := cfg.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	tail := append([]string{"-c", cfg.Code}, cfg.Args...)

	env := cfg.Environment
	if env == nil {
		return append([]string{interpreter}, tail...), noop, nil
	}

	switch env.Type {
	case "", domain.PythonEnvSystem:
		if len(env.Requirements) == 0 && env.RequirementsFile == "" {
			return append([]string{interpreter}, tail...), noop, nil
		}
		python, cleanup, err := r.createVenv(ctx, interpreter, job.ID, env)
		if err != nil {
			return nil, nil, err
		}
		return append([]string{python}, tail...), cleanup, nil

	case domain.PythonEnvUV:
		argv := []string{"uv", "run"}
		if env.PythonVersion != "" {
			argv = append(argv, "--python", env.PythonVersion)
		}
		for _, req := range env.Requirements {
			argv = append(argv, "--with", req)
		}
		if env.RequirementsFile != "" {
			argv = append(argv, "--with-requirements", env.RequirementsFile)
		}
		argv = append(argv, interpreter)
		return append(argv, tail...), noop, nil

	case domain.PythonEnvVenv:
		return append([]string{venvPython(env.VenvPath)}, tail...), noop, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown python environment %q", domain.ErrJobInvalid, env.Type)
	}
}

// createVenv builds a throwaway venv for a system-python job that lists
// requirements. The cleanup removes the whole directory.
func (r *Runner) createVenv(ctx context.Context, interpreter, jobID string, env *domain.PythonEnv) (string, func(), error) {
	dir, err := os.MkdirTemp("", "hydra-venv-"+jobID+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create venv dir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	mk := exec.CommandContext(ctx, interpreter, "-m", "venv", dir)
	if out, err := mk.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("create venv: %v: %s", err, out)
	}

	python := venvPython(dir)
	args := []string{"-m", "pip", "install", "--quiet"}
	args = append(args, env.Requirements...)
	if env.RequirementsFile != "" {
		args = append(args, "-r", env.RequirementsFile)
	}
	install := exec.CommandContext(ctx, python, args...)
	if out, err := install.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("install requirements: %v: %s", err, out)
	}

	r.logger.Debug("ephemeral venv ready", "job_id", jobID, "dir", dir)
	return python, cleanup, nil
}

func venvPython(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts", "python.exe")
	}
	return filepath.Join(venvPath, "bin", "python")
}
