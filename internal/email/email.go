package email

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	mail "github.com/go-mail/mail/v2"

	"manuscript-review/internal/config"
	"manuscript-review/internal/models"
)

// Service renders and delivers editorial mails
type Service struct {
	config  *config.EmailConfig
	deliver func(*mail.Message) error
}

// NewService creates a new email service
func NewService(cfg *config.EmailConfig) *Service {
	s := &Service{config: cfg}
	s.deliver = s.dialAndSend
	return s
}

func (s *Service) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	d.Timeout = 10 * time.Second
	return d.DialAndSend(m)
}

// sendEmail delivers an HTML mail to the given recipients
func (s *Service) sendEmail(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.config.SMTPFrom)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.deliver(m); err != nil {
		slog.Error("Failed to send email",
			"host", s.config.SMTPHost,
			"subject", subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	slog.Info("Email sent successfully", "to", to, "subject", subject)
	return nil
}

var statusChangeTemplate = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Submission {{.SubmissionID}}</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #4a90e2;">Submission #{{.SubmissionID}} is now {{.ToState}}</h2>
        <table style="border-collapse: collapse;">
            {{if .FromState}}<tr><td style="padding: 4px 12px 4px 0;">Previous state</td><td>{{.FromState}}</td></tr>{{end}}
            <tr><td style="padding: 4px 12px 4px 0;">Trigger</td><td>{{.Trigger}}</td></tr>
            <tr><td style="padding: 4px 12px 4px 0;">Actor</td><td>{{.ActorRole}} #{{.ActorID}}</td></tr>
            <tr><td style="padding: 4px 12px 4px 0;">Recorded</td><td>{{.CreatedAt.Format "2006-01-02 15:04 MST"}}</td></tr>
            {{if .Detail}}<tr><td style="padding: 4px 12px 4px 0;">Note</td><td>{{.Detail}}</td></tr>{{end}}
        </table>
        <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
        <p style="color: #999; font-size: 12px;">This is an automated email. Please do not reply.</p>
    </div>
</body>
</html>
`))

// SendStatusChange notifies the editorial office of a submission status change
func (s *Service) SendStatusChange(event models.LifecycleEvent) error {
	var body bytes.Buffer
	if err := statusChangeTemplate.Execute(&body, event); err != nil {
		return fmt.Errorf("failed to render status mail: %w", err)
	}
	subject := fmt.Sprintf("Submission #%d: %s", event.SubmissionID, event.ToState)
	return s.sendEmail([]string{s.config.EditorialAddress}, subject, body.String())
}

// StaleRound is one entry of the stale round reminder
type StaleRound struct {
	SubmissionID uint
	RoundID      uint
	Sequence     int
	OpenedAt     time.Time
	DaysOpen     int
	Outstanding  int
}

var staleRoundTemplate = template.Must(template.New("stale").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Stale review rounds</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 800px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #4a90e2;">{{len .}} review round(s) waiting for recommendations</h2>
        <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
            <thead>
                <tr style="background-color: #f5f5f5; border-bottom: 2px solid #ddd;">
                    <th style="padding: 12px 8px; text-align: left;">Submission</th>
                    <th style="padding: 12px 8px; text-align: left;">Round</th>
                    <th style="padding: 12px 8px; text-align: left;">Opened</th>
                    <th style="padding: 12px 8px; text-align: center;">Days open</th>
                    <th style="padding: 12px 8px; text-align: center;">Outstanding</th>
                </tr>
            </thead>
            <tbody>
            {{range .}}
                <tr style="border-bottom: 1px solid #eee;">
                    <td style="padding: 12px 8px;">#{{.SubmissionID}}</td>
                    <td style="padding: 12px 8px;">{{.Sequence}}</td>
                    <td style="padding: 12px 8px;">{{.OpenedAt.Format "2006-01-02"}}</td>
                    <td style="padding: 12px 8px; text-align: center;">{{.DaysOpen}}</td>
                    <td style="padding: 12px 8px; text-align: center;">{{.Outstanding}}</td>
                </tr>
            {{end}}
            </tbody>
        </table>
        <p style="color: #999; font-size: 12px;">You receive this summary while rounds stay open. This is an automated email.</p>
    </div>
</body>
</html>
`))

// SendStaleRoundReminder sends the editorial office a summary of rounds that
// have been open too long. Nothing is sent for an empty list.
func (s *Service) SendStaleRoundReminder(rounds []StaleRound) error {
	if len(rounds) == 0 {
		return nil
	}

	var body bytes.Buffer
	if err := staleRoundTemplate.Execute(&body, rounds); err != nil {
		return fmt.Errorf("failed to render reminder mail: %w", err)
	}
	subject := fmt.Sprintf("Reminder: %d stale review round(s)", len(rounds))
	return s.sendEmail([]string{s.config.EditorialAddress}, subject, body.String())
}

var chainAlertTemplate = template.Must(template.New("chain").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Event chain alert</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 800px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #d32f2f;">Event chain verification failed for {{len .}} submission(s)</h2>
        {{range .}}
        <h3>Submission #{{.SubmissionID}} ({{.Events}} events)</h3>
        <ul>{{range .Problems}}<li>{{.}}</li>{{end}}</ul>
        {{end}}
        <p>The lifecycle log of these submissions no longer matches its hashes. Investigate before relying on their audit trail.</p>
    </div>
</body>
</html>
`))

// SendChainAlert reports submissions whose event chain failed verification
func (s *Service) SendChainAlert(results []models.ChainVerification) error {
	if len(results) == 0 {
		return nil
	}

	var body bytes.Buffer
	if err := chainAlertTemplate.Execute(&body, results); err != nil {
		return fmt.Errorf("failed to render chain alert: %w", err)
	}
	subject := fmt.Sprintf("Alert: broken event chain on %d submission(s)", len(results))
	return s.sendEmail([]string{s.config.EditorialAddress}, subject, body.String())
}
