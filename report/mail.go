package report

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/aymerick/raymond"
	"github.com/wneessen/go-mail"
)

//go:embed templates/email.hbs
var defaultTemplate string

// MailConfig holds the SMTP settings for MailSender.
type MailConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	To           []string
	TemplatePath string
}

type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// MailSender renders the report through a handlebars template and sends it
// over SMTP.
type MailSender struct {
	client   mailClient
	from     string
	to       []string
	template *raymond.Template
}

// NewMailSender builds a sender. An empty TemplatePath uses the bundled
// template.
func NewMailSender(cfg MailConfig) (*MailSender, error) {
	tpl, err := loadTemplate(cfg.TemplatePath)
	if err != nil {
		return nil, err
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return newMailSender(client, tpl, cfg.From, cfg.To), nil
}

func newMailSender(client mailClient, tpl *raymond.Template, from string, to []string) *MailSender {
	return &MailSender{
		client:   client,
		from:     from,
		to:       to,
		template: tpl,
	}
}

// Render returns the subject and HTML body for r.
func (s *MailSender) Render(r Report) (string, string, error) {
	body, err := s.template.Exec(templateContext(r))
	if err != nil {
		return "", "", fmt.Errorf("render report: %w", err)
	}
	return Subject(r), body, nil
}

// Send renders and mails the report.
func (s *MailSender) Send(ctx context.Context, r Report) error {
	subject, body, err := s.Render(r)
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(s.to...); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

// Subject is the mail subject line for r.
func Subject(r Report) string {
	return fmt.Sprintf("Price Scraping Report - %s", r.Date)
}

func loadTemplate(path string) (*raymond.Template, error) {
	source := defaultTemplate
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", path, err)
		}
		source = string(data)
	}
	tpl, err := raymond.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return tpl, nil
}

func templateContext(r Report) map[string]interface{} {
	failed := make([]map[string]interface{}, 0, len(r.Failed))
	for _, site := range r.Failed {
		failed = append(failed, map[string]interface{}{
			"name":        site.Label(),
			"url":         site.URL,
			"document_id": site.DocumentID,
			"stage":       string(site.FailedStage),
			"error":       site.Error,
		})
	}
	return map[string]interface{}{
		"run_id":     r.RunID,
		"date":       r.Date,
		"year":       r.Year,
		"total":      r.Total,
		"successful": r.Successful,
		"hasFailed":  r.HasFailed,
		"failed":     failed,
	}
}
