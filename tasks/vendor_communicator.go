package tasks

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/types"
)

// VendorCommunicator turns stored validation findings into remediation
// emails for the responsible vendor. Bodies are drafted by the configured
// language model when an API key is present, with a plain template fallback.
type VendorCommunicator struct {
	cfg    *configs.Config
	client *anthropic.Client
}

// NewVendorCommunicator creates a communicator. The model client is only
// initialized when an API key is configured.
func NewVendorCommunicator(cfg *configs.Config) *VendorCommunicator {
	vc := &VendorCommunicator{cfg: cfg}
	if cfg.AnthropicAPIKey != "" {
		client := anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
		vc.client = &client
	}
	return vc
}

// BuildActionPlan assembles the remediation plan for one failed submission.
func (vc *VendorCommunicator) BuildActionPlan(extracted *types.ExtractedData, supplier *types.Supplier, findings []types.StoredError) *types.ActionPlan {
	plan := &types.ActionPlan{
		VendorName:      extracted.VendorName,
		Errors:          findings,
		Recommendations: recommendActions(findings),
		Priority:        planPriority(len(findings)),
		DueDate:         planDueDate(findings),
	}
	if supplier != nil {
		plan.VendorEmail = supplier.ContactEmail
		if plan.VendorName == "" {
			plan.VendorName = supplier.Name
		}
	}
	if len(extracted.PONumbers) > 0 {
		plan.PONumber = extracted.PONumbers[0]
	}
	if len(extracted.LotNumbers) > 0 {
		plan.LotNumber = extracted.LotNumbers[0]
	}
	return plan
}

// recommendActions maps error types to concrete correction steps,
// deduplicated in first-seen order.
func recommendActions(findings []types.StoredError) []string {
	seen := make(map[string]bool)
	var actions []string
	for _, finding := range findings {
		var action string
		switch finding.ErrorType {
		case types.ErrTypeSequence:
			action = "Review and correct event sequence according to DSCSA requirements"
		case types.ErrTypeField:
			action = "Add missing required fields to EPCIS events"
		case types.ErrTypeFormat:
			action = "Correct data format errors (EPCs, dates, URNs)"
		case types.ErrTypeHierarchy:
			action = "Fix packaging hierarchy and aggregation relationships"
		default:
			action = "Review and correct validation errors in EPCIS file"
		}
		if !seen[action] {
			seen[action] = true
			actions = append(actions, action)
		}
	}
	return actions
}

func planPriority(errorCount int) string {
	switch {
	case errorCount >= 10:
		return "urgent"
	case errorCount >= 5:
		return "high"
	case errorCount >= 1:
		return "normal"
	default:
		return "low"
	}
}

// planDueDate tightens the deadline when critical errors pile up.
func planDueDate(findings []types.StoredError) time.Time {
	critical := 0
	for _, finding := range findings {
		if finding.Severity == types.SeverityError {
			critical++
		}
	}

	days := 5
	switch {
	case critical >= 10:
		days = 2
	case critical >= 5:
		days = 3
	}
	return time.Now().UTC().AddDate(0, 0, days)
}

// Subject builds the email subject line for a plan.
func Subject(plan *types.ActionPlan) string {
	po := plan.PONumber
	if po == "" {
		po = "UNKNOWN"
	}
	subject := fmt.Sprintf("Action Required: EPCIS File Correction - PO #%s", po)
	if plan.Priority == "urgent" || plan.Priority == "high" {
		subject = "URGENT - " + subject
	}
	return subject
}

var remediationTemplate = template.Must(template.New("remediation").
	Funcs(template.FuncMap{"add": func(a, b int) int { return a + b }}).
	Parse(
	`Dear {{.VendorName}},

Our EPCIS validation system identified issues with your recent DSCSA submission that require correction.

{{if .PONumber}}Purchase Order: {{.PONumber}}
{{end}}{{if .LotNumber}}Lot Number: {{.LotNumber}}
{{end}}Priority: {{.Priority}}
Correction due: {{.DueDate.Format "January 2, 2006"}}

Issues found:
{{range .Errors}}  - [{{.Severity}}] {{.Message}}
{{end}}
Required actions:
{{range $i, $a := .Recommendations}}  {{add $i 1}}. {{$a}}
{{end}}
Please correct and resubmit the file. Reply to this message if you need the full validation report.

Regards,
Compliance Operations
`))

// ComposeEmail drafts the remediation email body. When a model client is
// available it drafts the body from the plan details; any model failure
// falls back to the static template so an email always goes out.
func (vc *VendorCommunicator) ComposeEmail(ctx context.Context, plan *types.ActionPlan) (*types.RemediationEmail, error) {
	body, err := vc.draftWithModel(ctx, plan)
	if err != nil {
		logger.Warn("Model draft failed, using template body", zap.Error(err))
		body = ""
	}
	if body == "" {
		body, err = renderTemplateBody(plan)
		if err != nil {
			return nil, err
		}
	}

	return &types.RemediationEmail{
		VendorEmail: plan.VendorEmail,
		Subject:     Subject(plan),
		Body:        body,
		Priority:    plan.Priority,
		DueDate:     plan.DueDate,
	}, nil
}

func renderTemplateBody(plan *types.ActionPlan) (string, error) {
	var sb strings.Builder
	if err := remediationTemplate.Execute(&sb, plan); err != nil {
		return "", fmt.Errorf("rendering remediation template: %w", err)
	}
	return sb.String(), nil
}

func (vc *VendorCommunicator) draftWithModel(ctx context.Context, plan *types.ActionPlan) (string, error) {
	if vc.client == nil {
		return "", nil
	}

	var issues strings.Builder
	for _, finding := range plan.Errors {
		fmt.Fprintf(&issues, "- [%s/%s] %s\n", finding.ErrorType, finding.Severity, finding.Message)
	}

	prompt := fmt.Sprintf(`Write a professional remediation email to a pharmaceutical vendor about EPCIS validation failures in their DSCSA submission.

Vendor: %s
Purchase order: %s
Lot: %s
Priority: %s
Correction due: %s

Validation issues:
%s
Required actions:
%s

Keep it under 250 words, plain text, no subject line. Do not invent details beyond those given.`,
		plan.VendorName, plan.PONumber, plan.LotNumber, plan.Priority,
		plan.DueDate.Format("January 2, 2006"),
		issues.String(), strings.Join(plan.Recommendations, "\n"))

	message, err := vc.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(vc.cfg.AnthropicModel),
		MaxTokens: int64(vc.cfg.AnthropicMaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("drafting email body: %w", err)
	}

	var body strings.Builder
	for _, block := range message.Content {
		body.WriteString(block.Text)
	}
	return strings.TrimSpace(body.String()), nil
}
