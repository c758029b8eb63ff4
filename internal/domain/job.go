package domain

import (
	"errors"
	"time"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobInvalid  = errors.New("job definition invalid")
)

type ExecutorType string

const (
	ExecutorShell    ExecutorType = "shell"
	ExecutorBatch    ExecutorType = "batch"
	ExecutorPython   ExecutorType = "python"
	ExecutorExternal ExecutorType = "external"
)

const (
	DefaultQueue    = "default"
	DefaultPriority = 5
	MinPriority     = 1
	MaxPriority     = 10
	DefaultUser     = "anonymous"
)

// Python environment types.
const (
	PythonEnvSystem = "system"
	PythonEnvVenv   = "venv"
	PythonEnvUV     = "uv"
)

// Affinity restricts which workers a job may run on. Empty lists are
// wildcards; every present list must match the worker.
type Affinity struct {
	OS              []string `json:"os,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Hostnames       []string `json:"hostnames,omitempty"`
	Subnets         []string `json:"subnets,omitempty"`
	DeploymentTypes []string `json:"deployment_types,omitempty"`
}

// PythonEnv describes how the python executor prepares its interpreter
// environment before running job code.
type PythonEnv struct {
	Type             string   `json:"type,omitempty"` // system, venv or uv
	PythonVersion    string   `json:"python_version,omitempty"`
	VenvPath         string   `json:"venv_path,omitempty"`
	Requirements     []string `json:"requirements,omitempty"`
	RequirementsFile string   `json:"requirements_file,omitempty"`
}

type ExecutorConfig struct {
	Type        ExecutorType      `json:"type"`
	Script      string            `json:"script,omitempty"`  // shell, batch
	Code        string            `json:"code,omitempty"`    // python
	Command     string            `json:"command,omitempty"` // external
	Shell       string            `json:"shell,omitempty"`
	Interpreter string            `json:"interpreter,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Workdir     string            `json:"workdir,omitempty"`
	Environment *PythonEnv        `json:"environment,omitempty"`
}

// SourceConfig points at a git repository fetched before execution. The
// checkout becomes the base directory for relative workdirs.
type SourceConfig struct {
	URL  string `json:"url"`
	Ref  string `json:"ref,omitempty"`
	Path string `json:"path,omitempty"`
}

// CompletionCriteria decides run success beyond the bare exit code. A nil
// ExitCodes slice means only exit code 0 is accepted.
type CompletionCriteria struct {
	ExitCodes         []int    `json:"exit_codes,omitempty"`
	StdoutContains    []string `json:"stdout_contains,omitempty"`
	StdoutNotContains []string `json:"stdout_not_contains,omitempty"`
	StderrContains    []string `json:"stderr_contains,omitempty"`
	StderrNotContains []string `json:"stderr_not_contains,omitempty"`
}

type JobDefinition struct {
	ID             string
	Domain         string
	Name           string
	User           string
	Queue          string // informational, not used for routing
	Priority       int    // 1..10, larger dispatches sooner
	Retries        int
	TimeoutSeconds int // 0 means no timeout
	NotifyEmail    string

	Affinity   Affinity
	Executor   ExecutorConfig
	Source     *SourceConfig // nil means no source fetch
	Schedule   ScheduleConfig
	Completion CompletionCriteria

	CreatedAt time.Time
	UpdatedAt time.Time
}
