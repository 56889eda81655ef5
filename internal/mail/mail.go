// ABOUTME: SMTP mail delivery for credential issuance mails
// ABOUTME: Defines the Sender interface and renders the embedded HTML template

package mail

import (
	"context"
	_ "embed"
	"fmt"
	"net/smtp"
	"strings"
)

//go:embed issuance.html
var issuanceTemplate string

// Sender delivers a rendered mail to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// TemplateData fills the placeholders of the issuance mail template.
type TemplateData struct {
	AppName      string
	ReceiverName string
	Link         string
	DeepLinkURL  string
}

// RenderIssuance renders the credential issuance mail body.
func RenderIssuance(data TemplateData) string {
	body := issuanceTemplate
	body = strings.ReplaceAll(body, "@@APPNAME@@", data.AppName)
	body = strings.ReplaceAll(body, "@@RECEIVERNAME@@", data.ReceiverName)
	body = strings.ReplaceAll(body, "@@LINK@@", data.Link)
	body = strings.ReplaceAll(body, "@@DEEPLINKURL@@", data.DeepLinkURL)
	return body
}

// SMTPSender is a Sender backed by a plain SMTP server.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender creates a sender for the given SMTP host and credentials.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
	}
}

// Send delivers an HTML mail. net/smtp has no context support, so the
// caller's deadline only bounds everything up to this call.
func (s *SMTPSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString("From: " + s.from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}
