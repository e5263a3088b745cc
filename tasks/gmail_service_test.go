package tasks

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/gmail/v1"
)

func encodedPart(mimeType, body string) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mimeType,
		Body:     &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
	}
}

func TestParseMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "msg-1",
		ThreadId:     "thread-1",
		InternalDate: 1756000000000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Validation failed for shipment.xml"},
				{Name: "From", Value: "alerts@acme-pharma.com"},
			},
			Parts: []*gmail.MessagePart{
				encodedPart("text/html", "<p>ignored</p>"),
				encodedPart("text/plain", "PO #ABC-12345 failed validation."),
			},
		},
	}

	email := parseMessage(msg)
	assert.Equal(t, "msg-1", email.ID)
	assert.Equal(t, "thread-1", email.ThreadID)
	assert.Equal(t, "Validation failed for shipment.xml", email.Subject)
	assert.Equal(t, "alerts@acme-pharma.com", email.Sender)
	assert.Equal(t, "PO #ABC-12345 failed validation.", email.Body)
	assert.Equal(t, 2025, email.ReceivedAt.Year())
}

func TestExtractBodyFallsBackToRoot(t *testing.T) {
	part := encodedPart("text/html", "<p>only html</p>")
	assert.Equal(t, "<p>only html</p>", extractBody(part))
}

func TestExtractBodyEmptyMessage(t *testing.T) {
	assert.Equal(t, "", extractBody(&gmail.MessagePart{MimeType: "multipart/mixed"}))
}

func TestDecodeBodyHandlesPadding(t *testing.T) {
	padded := base64.URLEncoding.EncodeToString([]byte("hello"))
	assert.Equal(t, "hello", decodeBody(padded))
}

func TestBuildRFC2822(t *testing.T) {
	raw := buildRFC2822("compliance@trackvision.example", "vendor@acme.example",
		"Action Required", "Please resubmit.")

	assert.Contains(t, raw, "From: compliance@trackvision.example\r\n")
	assert.Contains(t, raw, "To: vendor@acme.example\r\n")
	assert.Contains(t, raw, "Subject: Action Required\r\n")
	assert.Contains(t, raw, "\r\n\r\nPlease resubmit.")
}
