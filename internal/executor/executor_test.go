package executor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
	"github.com/hydrajobs/hydra/internal/executor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner() *executor.Runner {
	return executor.NewRunner(testLogger())
}

// skipWithoutBash guards tests that spawn real processes.
func skipWithoutBash(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix shell test")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not on PATH")
	}
}

func prepare(t *testing.T, job *domain.JobDefinition, baseDir string) executor.Spec {
	t.Helper()
	spec, cleanup, err := newRunner().Prepare(context.Background(), job, baseDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(cleanup)
	return spec
}

// ---- argv construction ----

func TestPrepare_Shell_DefaultsToBash(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix argv")
	}
	job := &domain.JobDefinition{
		ID:       "j1",
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "echo hi"},
	}

	spec := prepare(t, job, "")
	want := []string{"bash", "-lc", "echo hi"}
	if !reflect.DeepEqual(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestPrepare_Shell_HonorsShellOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix argv")
	}
	job := &domain.JobDefinition{
		ID:       "j1",
		Executor: domain.ExecutorConfig{Type: domain.ExecutorShell, Script: "echo hi", Shell: "zsh"},
	}

	spec := prepare(t, job, "")
	if spec.Argv[0] != "zsh" {
		t.Errorf("argv[0] = %q, want zsh", spec.Argv[0])
	}
}

func TestPrepare_Batch_FallsBackToBashOnPosix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix argv")
	}
	job := &domain.JobDefinition{
		ID:       "j1",
		Executor: domain.ExecutorConfig{Type: domain.ExecutorBatch, Script: "dir"},
	}

	spec := prepare(t, job, "")
	want := []string{"bash", "-lc", "dir"}
	if !reflect.DeepEqual(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestPrepare_Python_SystemDefaults(t *testing.T) {
	job := &domain.JobDefinition{
		ID:       "j1",
		Executor: domain.ExecutorConfig{Type: domain.ExecutorPython, Code: "print(1)"},
	}

	spec := prepare(t, job, "")
	want := []string{"python3", "-c", "print(1)"}
	if !reflect.DeepEqual(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestPrepare_Python_InterpreterAndArgs(t *testing.T) {
	job := &domain.JobDefinition{
		ID: "j1",
		Executor: domain.ExecutorConfig{
			Type:        domain.ExecutorPython,
			Code:        "print(1)",
			Interpreter: "python3.12",
			Args:        []string{"--flag", "x"},
		},
	}

	spec := prepare(t, job, "")
	want := []string{"python3.12", "-c", "print(1)", "--flag", "x"}
	if !reflect.DeepEqual(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestPrepare_Python_UVEnvironment(t *testing.T) {
	job := &domain.JobDefinition{
		ID: "j1",
		Executor: domain.ExecutorConfig{
			Type: domain.ExecutorPython,
			Code: "import requests",
			Environment: &domain.PythonEnv{
				Type:             domain.PythonEnvUV,
				PythonVersion:    "3.12",
				Requirements:     []string{"requests", "rich"},
				RequirementsFile: "reqs.txt",
			},
		},
	}

	spec := prepare(t, job, "")
	want := []string{
		"uv", "run",
		"--python", "3.12",
		"--with", "requests",
		"--with", "rich",
		"--with-requirements", "reqs.txt",
		"python3", "-c", "import requests",
	}
	if !reflect.DeepEqual(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestPrepare_Python_VenvEnvironment(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix venv layout")
	}
	job := &domain.JobDefinition{
		ID: "j1",
		Executor: domain.ExecutorConfig{
			Type: domain.ExecutorPython,
			Code: "print(1)",
			Environment: &domain.PythonEnv{
				Type:     domain.PythonEnvVenv,
				VenvPath: "/opt/venvs/etl",
			},
		},
	}

	spec := prepare(t, job, "")
	want := filepath.Join("/opt/venvs/etl", "bin", "python")
	if spec.Argv[0] != want {
		t.Errorf("argv[0] = %q, want %q", spec.Argv[0], want)
	}
}

func TestPrepare_External_SplitsQuotedCommand(t *testing.T) {
	job := &domain.JobDefinition{
		ID: "j1",
		Executor: domain.ExecutorConfig{
			Type:    domain.ExecutorExternal,
			Command: `mytool --msg "hello world"`,
			Args:    []string{"--count", "2"},
		},
	}

	spec := prepare(t, job, "")
	want := []string{"mytool", "--msg", "hello world", "--count", "2"}
	if !reflect.DeepEqual(spec.Argv, want) {
		t.Errorf("argv = %v, want %v", spec.Argv, want)
	}
}

func TestPrepare_External_UnbalancedQuote_Fails(t *testing.T) {
	job := &domain.JobDefinition{
		ID: "j1",
		Executor: domain.ExecutorConfig{
			Type:    domain.ExecutorExternal,
			Command: `mytool "unterminated`,
		},
	}

	_, _, err := newRunner().Prepare(context.Background(), job, "")
	if !errors.Is(err, domain.ErrJobInvalid) {
		t.Errorf("want ErrJobInvalid, got %v", err)
	}
}

func TestPrepare_UnknownExecutorType_Fails(t *testing.T) {
	job := &domain.JobDefinition{
		ID:       "j1",
		Executor: domain.ExecutorConfig{Type: "fortran"},
	}

	_, _, err := newRunner().Prepare(context.Background(), job, "")
	if !errors.Is(err, domain.ErrJobInvalid) {
		t.Errorf("want ErrJobInvalid, got %v", err)
	}
}

func TestPrepare_RelativeWorkdirJoinsCheckout(t *testing.T) {
	job := &domain.JobDefinition{
		ID: "j1",
		Executor: domain.ExecutorConfig{
			Type:    domain.ExecutorPython,
			Code:    "print(1)",
			Workdir: "scripts",
		},
	}

	spec := prepare(t, job, filepath.Join("/tmp", "checkout"))
	want := filepath.Join("/tmp", "checkout", "scripts")
	if spec.Dir != want {
		t.Errorf("dir = %q, want %q", spec.Dir, want)
	}
}

// ---- process runs ----

func TestRun_CapturesBothStreams(t *testing.T) {
	skipWithoutBash(t)

	var mu sync.Mutex
	lines := map[string][]string{}
	onLine := func(stream, text string) {
		mu.Lock()
		defer mu.Unlock()
		lines[stream] = append(lines[stream], text)
	}

	spec := executor.Spec{Argv: []string{"bash", "-c", "echo out1; echo err1 >&2; echo out2"}}
	res, err := newRunner().Run(context.Background(), spec, onLine)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ExitCode != 0 || res.Killed {
		t.Fatalf("result = %+v, want clean exit", res)
	}
	if res.Stdout != "out1\nout2\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "err1\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(lines["stdout"], []string{"out1", "out2"}) {
		t.Errorf("streamed stdout = %v", lines["stdout"])
	}
	if !reflect.DeepEqual(lines["stderr"], []string{"err1"}) {
		t.Errorf("streamed stderr = %v", lines["stderr"])
	}
}

func TestRun_NonZeroExitCode(t *testing.T) {
	skipWithoutBash(t)

	spec := executor.Spec{Argv: []string{"bash", "-c", "exit 3"}}
	res, err := newRunner().Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	skipWithoutBash(t)

	spec := executor.Spec{
		Argv:    []string{"bash", "-c", "echo started; sleep 30"},
		Timeout: 200 * time.Millisecond,
	}

	started := time.Now()
	res, err := newRunner().Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Killed {
		t.Error("expected Killed=true")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", res.ExitCode)
	}
	if res.Stdout != "started\n" {
		t.Errorf("partial stdout = %q, want output before the kill", res.Stdout)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Errorf("kill took %v, process group was not terminated", elapsed)
	}
}

func TestRun_EnvOverlayReachesProcess(t *testing.T) {
	skipWithoutBash(t)

	spec := executor.Spec{
		Argv: []string{"bash", "-c", "echo $HYDRA_TEST_VALUE"},
		Env:  map[string]string{"HYDRA_TEST_VALUE": "overlaid"},
	}
	res, err := newRunner().Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "overlaid\n" {
		t.Errorf("stdout = %q, want overlaid value", res.Stdout)
	}
}
