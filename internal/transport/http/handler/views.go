package handler

import (
	"time"

	"github.com/hydrajobs/hydra/internal/domain"
)

// tailChars caps stdout/stderr in list responses; the full text stays
// available on the single run endpoint.
const tailChars = 2000

type jobView struct {
	ID             string                    `json:"id"`
	Domain         string                    `json:"domain"`
	Name           string                    `json:"name"`
	User           string                    `json:"user"`
	Queue          string                    `json:"queue"`
	Priority       int                       `json:"priority"`
	Retries        int                       `json:"retries"`
	TimeoutSeconds int                       `json:"timeout_seconds"`
	NotifyEmail    string                    `json:"notify_email,omitempty"`
	Affinity       domain.Affinity           `json:"affinity"`
	Executor       domain.ExecutorConfig     `json:"executor"`
	Source         *domain.SourceConfig      `json:"source,omitempty"`
	Schedule       domain.ScheduleConfig     `json:"schedule"`
	Completion     domain.CompletionCriteria `json:"completion"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

func viewJob(j *domain.JobDefinition) jobView {
	return jobView{
		ID:             j.ID,
		Domain:         j.Domain,
		Name:           j.Name,
		User:           j.User,
		Queue:          j.Queue,
		Priority:       j.Priority,
		Retries:        j.Retries,
		TimeoutSeconds: j.TimeoutSeconds,
		NotifyEmail:    j.NotifyEmail,
		Affinity:       j.Affinity,
		Executor:       j.Executor,
		Source:         j.Source,
		Schedule:       j.Schedule,
		Completion:     j.Completion,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func viewJobs(jobs []*domain.JobDefinition) []jobView {
	out := make([]jobView, len(jobs))
	for i, j := range jobs {
		out[i] = viewJob(j)
	}
	return out
}

type runView struct {
	ID               string              `json:"id"`
	JobID            string              `json:"job_id"`
	Domain           string              `json:"domain"`
	User             string              `json:"user"`
	WorkerID         string              `json:"worker_id"`
	Status           domain.RunStatus    `json:"status"`
	ScheduledTS      time.Time           `json:"scheduled_ts"`
	StartTS          time.Time           `json:"start_ts"`
	EndTS            *time.Time          `json:"end_ts,omitempty"`
	ReturnCode       *int                `json:"return_code,omitempty"`
	Stdout           string              `json:"stdout"`
	Stderr           string              `json:"stderr"`
	Slot             int                 `json:"slot"`
	AttemptsUsed     int                 `json:"attempts_used"`
	RetriesRemaining int                 `json:"retries_remaining"`
	ScheduleMode     domain.ScheduleMode `json:"schedule_mode,omitempty"`
	ExecutorType     domain.ExecutorType `json:"executor_type,omitempty"`
	QueueLatencyMS   int64               `json:"queue_latency_ms"`
	CompletionReason string              `json:"completion_reason,omitempty"`
	DurationMS       int64               `json:"duration_ms"`
}

func viewRun(r *domain.JobRun) runView {
	return runView{
		ID:               r.ID,
		JobID:            r.JobID,
		Domain:           r.Domain,
		User:             r.User,
		WorkerID:         r.WorkerID,
		Status:           r.Status,
		ScheduledTS:      r.ScheduledTS,
		StartTS:          r.StartTS,
		EndTS:            r.EndTS,
		ReturnCode:       r.ReturnCode,
		Stdout:           r.Stdout,
		Stderr:           r.Stderr,
		Slot:             r.Slot,
		AttemptsUsed:     r.AttemptsUsed,
		RetriesRemaining: r.RetriesRemaining,
		ScheduleMode:     r.ScheduleMode,
		ExecutorType:     r.ExecutorType,
		QueueLatencyMS:   r.QueueLatencyMS,
		CompletionReason: r.CompletionReason,
		DurationMS:       r.Duration().Milliseconds(),
	}
}

// viewRunTail trims output for list responses.
func viewRunTail(r *domain.JobRun) runView {
	v := viewRun(r)
	v.Stdout = tail(v.Stdout, tailChars)
	v.Stderr = tail(v.Stderr, tailChars)
	return v
}

func viewRunTails(runs []*domain.JobRun) []runView {
	out := make([]runView, len(runs))
	for i, r := range runs {
		out[i] = viewRunTail(r)
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type workerView struct {
	ID             string    `json:"id"`
	Domain         string    `json:"domain"`
	OS             string    `json:"os"`
	Tags           []string  `json:"tags"`
	AllowedUsers   []string  `json:"allowed_users"`
	Queues         []string  `json:"queues"`
	MaxConcurrency int       `json:"max_concurrency"`
	CurrentRunning int       `json:"current_running"`
	Status         string    `json:"status"`
	State          string    `json:"state"`
	CPUCount       int       `json:"cpu_count"`
	Hostname       string    `json:"hostname"`
	IP             string    `json:"ip"`
	Subnet         string    `json:"subnet"`
	DeploymentType string    `json:"deployment_type"`
	RunUser        string    `json:"run_user"`
	Workdir        string    `json:"workdir"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
}

// viewWorker never exposes the token hash.
func viewWorker(w *domain.WorkerInfo) workerView {
	return workerView{
		ID:             w.ID,
		Domain:         w.Domain,
		OS:             w.OS,
		Tags:           w.Tags,
		AllowedUsers:   w.AllowedUsers,
		Queues:         w.Queues,
		MaxConcurrency: w.MaxConcurrency,
		CurrentRunning: w.CurrentRunning,
		Status:         w.Status,
		State:          w.State,
		CPUCount:       w.CPUCount,
		Hostname:       w.Hostname,
		IP:             w.IP,
		Subnet:         w.Subnet,
		DeploymentType: w.DeploymentType,
		RunUser:        w.RunUser,
		Workdir:        w.Workdir,
		LastHeartbeat:  w.LastHeartbeat,
	}
}

type domainView struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewDomain(d *domain.Domain) domainView {
	return domainView{
		Name:        d.Name,
		DisplayName: d.DisplayName,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}
