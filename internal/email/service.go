// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host      string
	Port      string
	Username  string
	Password  string
	From      string
	FromName  string
	EnableTLS bool
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	// Simple multipart message
	boundary := "boundary-atrium"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

// WelcomeData holds data for the account welcome email.
type WelcomeData struct {
	OrgName   string
	UserName  string
	Role      string
	Email     string
	Password  string
	PortalURL string
}

// SendWelcomeEmail sends initial credentials to a newly provisioned
// employee or client account.
func (s *Service) SendWelcomeEmail(to, userName, orgName, role, password, portalURL string) error {
	data := WelcomeData{
		OrgName:   orgName,
		UserName:  userName,
		Role:      role,
		Email:     to,
		Password:  password,
		PortalURL: portalURL,
	}

	subject := fmt.Sprintf("Your %s portal account", orgName)
	html, err := renderTemplate(welcomeEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render welcome template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// ProjectClosedData holds data for the project closure notice.
type ProjectClosedData struct {
	OrgName     string
	ProjectName string
	Status      string
	PortalURL   string
}

// SendProjectClosedEmail notifies the client when a project is
// completed or cancelled.
func (s *Service) SendProjectClosedEmail(to, orgName, projectName, status, portalURL string) error {
	data := ProjectClosedData{
		OrgName:     orgName,
		ProjectName: projectName,
		Status:      status,
		PortalURL:   portalURL,
	}

	subject := fmt.Sprintf("%s: %s", projectName, status)
	html, err := renderTemplate(projectClosedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render project closed template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const welcomeEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your {{.OrgName}} portal account</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #f59e0b; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #1f2937; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .credentials { background: #f9fafb; border: 1px solid #e5e7eb; padding: 12px 16px; border-radius: 4px; margin: 20px 0; font-family: monospace; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.OrgName}}</h1>
    </div>

    <h2>Welcome, {{.UserName}}!</h2>

    <p>A {{.Role}} account has been created for you on the {{.OrgName}} portal. Use the credentials below to sign in:</p>

    <div class="credentials">
        Email: {{.Email}}<br>
        Password: {{.Password}}
    </div>

    <p>
        <a href="{{.PortalURL}}" class="button">Open Portal</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.PortalURL}}</p>

    <p>Please change your password after your first sign-in.</p>

    <div class="footer">
        <p>If you weren't expecting this account, you can safely ignore this email.</p>
    </div>
</body>
</html>`

const projectClosedEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.ProjectName}}: {{.Status}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #f59e0b; padding-bottom: 10px; margin-bottom: 20px; }
        .status { background: #f9fafb; border: 1px solid #e5e7eb; padding: 12px 16px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.OrgName}}</h1>
    </div>

    <h2>{{.ProjectName}}</h2>

    <div class="status">
        This project has been marked <strong>{{.Status}}</strong>.
    </div>

    <p>Thank you for working with {{.OrgName}}. You can review the project history on the portal while your account remains active.</p>

    <div class="footer">
        <p>This is an automated notice from the {{.OrgName}} portal.</p>
    </div>
</body>
</html>`
