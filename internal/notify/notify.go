// Package notify emails the run summary.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"github.com/roach88/trdsync/internal/config"
	"github.com/roach88/trdsync/internal/upload"
)

// Summary is what a run reports by email.
type Summary struct {
	DryRun bool

	NewParticipants      int
	ImportedParticipants int
	NewResponses         int
	ImportedResponses    int

	Errors   int
	Warnings int

	// ProvisionalStudyIDs lists the study ids a dry run would have issued.
	ProvisionalStudyIDs []string

	// Log holds the run's log lines.
	Log []string
}

// NewSummary builds a summary from an upload report. A nil report means the
// run stopped before uploading.
func NewSummary(r *upload.Report, warnings, errors int, log []string) Summary {
	s := Summary{Warnings: warnings, Errors: errors, Log: log}
	if r != nil {
		s.DryRun = r.DryRun
		s.NewParticipants = r.NewParticipants
		s.NewResponses = r.NewResponses
		s.ImportedParticipants = r.ImportedParticipants
		s.ImportedResponses = r.ImportedResponses
		if r.DryRun {
			s.ImportedParticipants = r.NewParticipants
			s.ImportedResponses = r.NewResponses
			s.ProvisionalStudyIDs = r.ProvisionalStudyIDs()
		}
	}
	return s
}

// Participants is the new participant count, or "imported/new" when some
// failed to import. Empty when there were none.
func (s Summary) Participants() string {
	return ratio(s.ImportedParticipants, s.NewParticipants)
}

// Responses is the new response count, or "imported/new" when some failed
// to import. Empty when there were none.
func (s Summary) Responses() string {
	return ratio(s.ImportedResponses, s.NewResponses)
}

func ratio(imported, total int) string {
	switch {
	case total == 0:
		return ""
	case imported < total:
		return fmt.Sprintf("%d/%d", imported, total)
	default:
		return fmt.Sprintf("%d", total)
	}
}

// Empty reports whether there is nothing worth sending: no changes and
// nothing logged at warning level or above.
func (s Summary) Empty() bool {
	return s.NewParticipants == 0 && s.NewResponses == 0 && s.Errors == 0 && s.Warnings == 0
}

// Subject is the email subject line.
func (s Summary) Subject() string {
	if s.DryRun {
		return "TRD CLI Summary [DRY RUN]"
	}
	return "TRD CLI Summary"
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<html>
<body>
<h1>True Colours -&gt; REDCap Data Comparison Summary</h1>
{{- if or .Participants .Responses}}
<h2>Changes</h2>
<ul>
{{- with .Participants}}
    <li>New Participants: {{if $.ParticipantsShort}}<strong>{{.}}</strong>{{else}}{{.}}{{end}}</li>
{{- end}}
{{- with .Responses}}
    <li>New Responses: {{if $.ResponsesShort}}<strong>{{.}}</strong>{{else}}{{.}}{{end}}</li>
{{- end}}
</ul>
{{- with .ProvisionalStudyIDs}}
<p>Provisional study ids (dry run, not reserved): {{range $i, $id := .}}{{if $i}}, {{end}}{{$id}}{{end}}</p>
{{- end}}
{{- end}}
<h2>Log Summary</h2>
<details>
    <summary>Log File ({{.Errors}} Errors, {{.Warnings}} Warnings)</summary>
    <p>{{range $i, $line := .Log}}{{if $i}}<br />{{end}}{{$line}}{{end}}</p>
</details>
</body>
</html>
`))

// ParticipantsShort reports whether some new participants failed to import.
func (s Summary) ParticipantsShort() bool { return s.ImportedParticipants < s.NewParticipants }

// ResponsesShort reports whether some new responses failed to import.
func (s Summary) ResponsesShort() bool { return s.ImportedResponses < s.NewResponses }

// Render returns the summary as an HTML document.
func Render(s Summary) (string, error) {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("rendering summary: %w", err)
	}
	return buf.String(), nil
}

// Sender delivers one HTML message.
type Sender interface {
	Send(to []string, subject, html string) error
}

// SMTPSender sends mail through an authenticated SMTP relay.
type SMTPSender struct {
	Addr     string
	Host     string
	From     string
	Username string
	Password string
}

// NewSMTPSender creates a sender for the mail settings.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		Addr:     cfg.Addr(),
		Host:     cfg.Host,
		From:     cfg.From(),
		Username: cfg.Username,
		Password: cfg.Secret,
	}
}

// Send implements Sender.
func (s *SMTPSender) Send(to []string, subject, html string) error {
	e := email.NewEmail()
	e.From = s.From
	e.To = to
	e.Subject = subject
	e.HTML = []byte(html)
	return e.Send(s.Addr, smtp.PlainAuth("", s.Username, s.Password, s.Host))
}

// Notifier sends run summaries.
type Notifier struct {
	sender Sender
	to     []string
	logger *slog.Logger
}

// New creates a notifier mailing the comma-separated addresses in to.
func New(sender Sender, to string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	var recipients []string
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	return &Notifier{sender: sender, to: recipients, logger: logger}
}

// Notify renders and sends s. It returns false without sending when the
// summary is empty.
func (n *Notifier) Notify(s Summary) (bool, error) {
	if s.Empty() {
		n.logger.Info("no changes detected; summary email skipped")
		return false, nil
	}
	body, err := Render(s)
	if err != nil {
		return false, err
	}
	if err := n.sender.Send(n.to, s.Subject(), body); err != nil {
		return false, fmt.Errorf("sending summary email: %w", err)
	}
	n.logger.Info("summary email sent", "to", strings.Join(n.to, ", "), "subject", s.Subject())
	return true, nil
}
