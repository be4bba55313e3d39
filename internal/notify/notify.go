// Package notify delivers the completion report of a session by email
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/annotator/internal/report"
)

// ErrNotConfigured is returned when no mail server or recipient is configured
var ErrNotConfigured = errors.New("mail delivery is not configured")

// Config holds the static delivery settings. None of it comes from the annotator.
type Config struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	From          string `yaml:"from"`
	To            string `yaml:"to"`
	SubjectPrefix string `yaml:"subject_prefix"`
	// TLS is "mandatory", "opportunistic" or "none"
	TLS string `yaml:"tls"`
}

// Validate reports whether a message could be sent with this configuration
func (c Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.To == "" {
		missing = append(missing, "to")
	}
	if c.From == "" {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}
	return nil
}

// Report is what gets delivered when a session completes
type Report struct {
	Annotator      string
	RootDirectory  string
	Summary        report.Summary
	FinishedAt     time.Time
	AttachmentName string
	Attachment     []byte
}

// Message is a plain-text email with one attachment
type Message struct {
	From           string
	To             string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
}

// Sender delivers a composed message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Compose renders the fixed-format completion message
func Compose(cfg Config, r Report) Message {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "[annotator]"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Annotation session completed.\n\n")
	fmt.Fprintf(&body, "Annotator:     %s\n", r.Annotator)
	fmt.Fprintf(&body, "Directory:     %s\n", r.RootDirectory)
	fmt.Fprintf(&body, "Finished at:   %s\n\n", r.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&body, "Total images:  %d\n", r.Summary.Total)
	fmt.Fprintf(&body, "Annotated:     %d\n", r.Summary.Annotated)
	fmt.Fprintf(&body, "Ignored:       %d\n", r.Summary.Ignored)
	if r.Summary.Annotated > 0 {
		fmt.Fprintf(&body, "Kept folder label: %d (%.1f%%)\n", r.Summary.Confirmed, r.Summary.AgreementRate()*100)
	}
	if labels := r.Summary.Labels(); len(labels) > 0 {
		fmt.Fprintf(&body, "\nBy label:\n")
		for _, label := range labels {
			fmt.Fprintf(&body, "  %s: %d\n", label, r.Summary.ByLabel[label])
		}
	}
	fmt.Fprintf(&body, "\nThe full report is attached (%s).\n", r.AttachmentName)

	return Message{
		From:           cfg.From,
		To:             cfg.To,
		Subject:        fmt.Sprintf("%s Annotations by %s - %d images", prefix, r.Annotator, r.Summary.Total),
		Body:           body.String(),
		AttachmentName: r.AttachmentName,
		Attachment:     r.Attachment,
	}
}

// Mailer sends completion reports to the configured recipient
type Mailer struct {
	cfg    Config
	sender Sender
}

// New builds a Mailer delivering over SMTP
func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg, sender: NewSMTPSender(cfg)}
}

// NewWithSender builds a Mailer around an arbitrary transport
func NewWithSender(cfg Config, sender Sender) *Mailer {
	return &Mailer{cfg: cfg, sender: sender}
}

// Notify composes and sends the report once. Failures are returned, not retried.
func (m *Mailer) Notify(ctx context.Context, r Report) error {
	if err := m.cfg.Validate(); err != nil {
		return err
	}

	msg := Compose(m.cfg, r)
	slog.Info("Sending completion report", "annotator", r.Annotator, "to", msg.To, "attachment", msg.AttachmentName)
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	slog.Info("Completion report sent", "annotator", r.Annotator)
	return nil
}
