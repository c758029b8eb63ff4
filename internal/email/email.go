package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"

	"github.com/hydrajobs/hydra/internal/domain"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them — used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("notification email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API — used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

const stderrTailLines = 20

// FailureNotification renders the email sent when a run exhausts its
// retries. Returns subject and HTML body.
func FailureNotification(job *domain.JobDefinition, run *domain.JobRun) (string, string) {
	subject := fmt.Sprintf("hydra: job %q failed", job.Name)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Job <b>%s</b> (domain %s) failed permanently.</p>", job.Name, job.Domain)
	fmt.Fprintf(&b, "<p>Run: %s<br>Worker: %s<br>Attempts: %d<br>Reason: %s</p>",
		run.ID, run.WorkerID, run.AttemptsUsed, run.CompletionReason)

	if tail := lastLines(run.Stderr, stderrTailLines); tail != "" {
		fmt.Fprintf(&b, "<p>stderr tail:</p><pre>%s</pre>", tail)
	}
	return subject, b.String()
}

func lastLines(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
