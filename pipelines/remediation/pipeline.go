package remediation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/pipelines"
	"github.com/trackvision/tv-epcis-validator/tasks"
	"github.com/trackvision/tv-epcis-validator/types"
)

// Steps lists all task names in this pipeline (for API discovery).
var Steps = []string{
	"fetch_emails",
	"extract_data",
	"correlate_submissions",
	"generate_action_plans",
	"send_responses",
	"update_status",
}

// Mailer is the slice of the mail service this pipeline needs. GmailService
// satisfies it.
type Mailer interface {
	FetchUnreadFailures(ctx context.Context) ([]types.EmailData, error)
	Send(ctx context.Context, email *types.RemediationEmail) error
	MarkProcessed(ctx context.Context, messageID string) error
}

// remediationCase carries one failure notification through the pipeline.
type remediationCase struct {
	email      types.EmailData
	data       *types.ExtractedData
	submission *types.Submission
	supplier   *types.Supplier
	findings   []types.StoredError
	plan       *types.ActionPlan
	outbound   *types.RemediationEmail
	sent       bool
}

// Run executes the vendor remediation pipeline: read failure notification
// emails, match them to stored submissions, and send the vendor a
// correction plan.
func Run(ctx context.Context, cfg *configs.Config, db *sqlx.DB, mailer Mailer, id string) error {
	communicator := tasks.NewVendorCommunicator(cfg)

	// Shared state via closures
	var cases []*remediationCase

	flow := pipelines.NewFlow("remediation")

	// Task 1: Fetch unread failure notifications
	flow.AddTask("fetch_emails", func() error {
		logger.Info("Fetching failure notifications", zap.String("id", id))
		emails, err := mailer.FetchUnreadFailures(ctx)
		if err != nil {
			return err
		}
		for _, email := range emails {
			cases = append(cases, &remediationCase{email: email})
		}
		logger.Info("Fetched failure notifications", zap.Int("count", len(cases)))
		return nil
	})

	// Task 2: Extract PO numbers, lots, and file references
	flow.AddTask("extract_data", func() error {
		for _, c := range cases {
			c.data = tasks.ExtractEmailData(&c.email)
		}
		return nil
	}, "fetch_emails")

	// Task 3: Match each notification to a stored submission
	flow.AddTask("correlate_submissions", func() error {
		matched := 0
		for _, c := range cases {
			sub, err := findSubmission(ctx, db, c.data)
			if err != nil {
				return err
			}
			if sub == nil {
				logger.Warn("No submission matched notification",
					zap.String("email_id", c.email.ID),
					zap.String("file_name", c.data.FileName))
				continue
			}
			c.submission = sub
			matched++

			c.findings, err = tasks.GetSubmissionErrors(ctx, db, sub.ID)
			if err != nil {
				return err
			}
			c.supplier, err = tasks.GetSupplier(ctx, db, sub.SupplierID)
			if err != nil {
				return err
			}
		}
		logger.Info("Correlated notifications", zap.Int("matched", matched))
		return nil
	}, "extract_data")

	// Task 4: Build action plans and draft vendor emails
	flow.AddTask("generate_action_plans", func() error {
		for _, c := range cases {
			if c.submission == nil {
				continue
			}
			c.plan = communicator.BuildActionPlan(c.data, c.supplier, c.findings)
			if c.plan.VendorEmail == "" {
				logger.Warn("No vendor contact for submission, skipping",
					zap.String("submission_id", c.submission.ID))
				c.plan = nil
				continue
			}
			outbound, err := communicator.ComposeEmail(ctx, c.plan)
			if err != nil {
				return err
			}
			outbound.SubmissionID = c.submission.ID
			c.outbound = outbound
		}
		return nil
	}, "correlate_submissions")

	// Task 5: Send and record the remediation emails
	flow.AddTask("send_responses", func() error {
		sent := 0
		for _, c := range cases {
			if c.outbound == nil {
				continue
			}
			if err := mailer.Send(ctx, c.outbound); err != nil {
				logger.Error("Failed to send remediation email",
					zap.String("submission_id", c.outbound.SubmissionID),
					zap.Error(err))
				continue
			}
			c.sent = true
			sent++
			c.outbound.ID = uuid.New().String()
			c.outbound.SentAt = time.Now().UTC()
			if err := tasks.InsertRemediationEmail(ctx, db, c.outbound); err != nil {
				return err
			}
		}
		logger.Info("Sent remediation emails", zap.Int("count", sent))
		return nil
	}, "generate_action_plans")

	// Task 6: Mark handled notifications read so they are not reprocessed
	flow.AddTask("update_status", func() error {
		for _, c := range cases {
			if !c.sent {
				continue
			}
			if err := mailer.MarkProcessed(ctx, c.email.ID); err != nil {
				logger.Error("Failed to mark notification processed",
					zap.String("email_id", c.email.ID),
					zap.Error(err))
			}
		}
		return nil
	}, "send_responses")

	return flow.Run(ctx)
}

// findSubmission resolves a notification to a submission, preferring the
// explicit submission ID over a file name match.
func findSubmission(ctx context.Context, db *sqlx.DB, data *types.ExtractedData) (*types.Submission, error) {
	if data.SubmissionID != "" {
		sub, err := tasks.GetSubmission(ctx, db, data.SubmissionID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	if data.FileName != "" {
		return tasks.FindSubmissionByFileName(ctx, db, data.FileName)
	}
	return nil, nil
}
