package usecase

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/schedule"
)

const pythonCheckTimeout = 5 * time.Second

// ValidateDefinition normalizes defaults and checks a definition. It
// returns the normalized copy (schedule initialized against now) and a
// nil error list when the definition is acceptable. The input is not
// modified.
func ValidateDefinition(ctx context.Context, def domain.JobDefinition, now time.Time) (domain.JobDefinition, domain.ValidationErrors) {
	var errs domain.ValidationErrors
	fail := func(field, msg string) {
		errs = append(errs, domain.FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(def.Name) == "" {
		fail("name", "name is required")
	}
	if def.User == "" {
		def.User = domain.DefaultUser
	}
	if def.Queue == "" {
		def.Queue = domain.DefaultQueue
	}
	if def.Priority == 0 {
		def.Priority = domain.DefaultPriority
	}
	if def.Priority < domain.MinPriority || def.Priority > domain.MaxPriority {
		fail("priority", "priority must be between 1 and 10")
	}
	if def.Retries < 0 {
		fail("retries", "retries must not be negative")
	}
	if def.TimeoutSeconds < 0 {
		fail("timeout_seconds", "timeout must not be negative")
	}
	if len(def.Completion.ExitCodes) == 0 {
		def.Completion.ExitCodes = []int{0}
	}

	validateExecutor(ctx, def.Executor, fail)

	initialized, err := schedule.Initialize(def.Schedule, now)
	if err != nil {
		fail(scheduleField(err), err.Error())
	} else {
		def.Schedule = initialized
	}

	if errs != nil {
		return def, errs
	}
	return def, nil
}

func validateExecutor(ctx context.Context, ex domain.ExecutorConfig, fail func(field, msg string)) {
	switch ex.Type {
	case domain.ExecutorShell, domain.ExecutorBatch:
		if strings.TrimSpace(ex.Script) == "" {
			fail("executor.script", "script is required for "+string(ex.Type)+" jobs")
		}
	case domain.ExecutorPython:
		if strings.TrimSpace(ex.Code) == "" {
			fail("executor.code", "code is required for python jobs")
		} else if err := pythonSyntaxCheck(ctx, ex.Code, ex.Interpreter); err != nil {
			fail("executor.code", err.Error())
		}
	case domain.ExecutorExternal:
		if strings.TrimSpace(ex.Command) == "" {
			fail("executor.command", "command is required for external jobs")
		}
	case "":
		fail("executor.type", "executor type is required")
	default:
		fail("executor.type", "unknown executor type "+string(ex.Type))
	}

	if env := ex.Environment; env != nil && env.VenvPath != "" && env.Type != domain.PythonEnvVenv {
		fail("executor.environment.venv_path", "venv_path requires environment type venv")
	}
}

// pythonSyntaxCheck compiles the code with the interpreter so syntax
// errors surface at submit time instead of on a worker. Best effort: a
// host without the interpreter skips the check.
func pythonSyntaxCheck(ctx context.Context, code, interpreter string) error {
	if interpreter == "" {
		interpreter = "python3"
	}
	path, err := exec.LookPath(interpreter)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, pythonCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-c", `import sys; compile(sys.stdin.read(), "<job>", "exec")`)
	cmd.Stdin = strings.NewReader(code)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.New(syntaxErrorLine(stderr.String()))
	}
	return nil
}

// syntaxErrorLine extracts the final "SyntaxError: ..." line from a
// python traceback, falling back to a generic message.
func syntaxErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "python code does not compile"
}

// scheduleField maps schedule engine sentinels to the JSON field that
// triggered them.
func scheduleField(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCronExpr):
		return "schedule.cron"
	case errors.Is(err, domain.ErrInvalidInterval):
		return "schedule.interval_seconds"
	case errors.Is(err, domain.ErrInvalidTimezone):
		return "schedule.timezone"
	default:
		return "schedule.mode"
	}
}
