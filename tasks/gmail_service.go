package tasks

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/types"
)

// GmailService reads failure notification emails from a labeled inbox and
// sends remediation emails to vendors. Credentials come from application
// default credentials.
type GmailService struct {
	cfg *configs.Config
	svc *gmail.Service
}

// NewGmailService connects to the Gmail API.
func NewGmailService(ctx context.Context, cfg *configs.Config) (*GmailService, error) {
	svc, err := gmail.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailService{cfg: cfg, svc: svc}, nil
}

// FetchUnreadFailures lists unread messages under the configured failure
// label and returns their parsed contents.
func (g *GmailService) FetchUnreadFailures(ctx context.Context) ([]types.EmailData, error) {
	query := fmt.Sprintf("label:%s is:unread", g.cfg.GmailLabel)
	list, err := g.svc.Users.Messages.List("me").Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	var emails []types.EmailData
	for _, ref := range list.Messages {
		msg, err := g.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logger.Error("Failed to fetch message",
				zap.String("message_id", ref.Id), zap.Error(err))
			continue
		}
		emails = append(emails, parseMessage(msg))
	}

	logger.Info("Fetched failure notifications",
		zap.String("label", g.cfg.GmailLabel),
		zap.Int("count", len(emails)))
	return emails, nil
}

// MarkProcessed removes the unread label so the message is not picked up
// again on the next run.
func (g *GmailService) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := g.svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("marking message %s read: %w", messageID, err)
	}
	return nil
}

// Send delivers a remediation email to the vendor.
func (g *GmailService) Send(ctx context.Context, email *types.RemediationEmail) error {
	raw := buildRFC2822(g.cfg.RemediationSender, email.VendorEmail, email.Subject, email.Body)
	_, err := g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.RawURLEncoding.EncodeToString([]byte(raw)),
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sending email to %s: %w", email.VendorEmail, err)
	}

	logger.Info("Remediation email sent",
		zap.String("to", email.VendorEmail),
		zap.String("subject", email.Subject))
	return nil
}

func parseMessage(msg *gmail.Message) types.EmailData {
	email := types.EmailData{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return email
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.Sender = header.Value
		}
	}
	email.Body = extractBody(msg.Payload)
	return email
}

// extractBody walks the MIME tree and returns the first text/plain part,
// falling back to whatever body data the root part carries.
func extractBody(part *gmail.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if body := extractBody(child); body != "" {
			return body
		}
	}
	if part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	return ""
}

func decodeBody(data string) string {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(decoded)
}

func buildRFC2822(from, to, subject, body string) string {
	var sb strings.Builder
	if from != "" {
		fmt.Fprintf(&sb, "From: %s\r\n", from)
	}
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(body)
	return sb.String()
}
