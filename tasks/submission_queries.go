package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/types"
)

// InsertSubmission writes a new submission row.
func InsertSubmission(ctx context.Context, db *sqlx.DB, sub *types.Submission) error {
	query := `
INSERT INTO epcis_submissions
    (id, supplier_id, file_name, file_path, file_size, file_hash, status,
     submission_date, processing_date, submitter_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		sub.ID, sub.SupplierID, sub.FileName, sub.FilePath, sub.FileSize,
		sub.FileHash, sub.Status, sub.SubmissionDate, sub.ProcessingDate,
		sub.SubmitterID)
	if err != nil {
		return fmt.Errorf("inserting submission %s: %w", sub.ID, err)
	}
	return nil
}

// UpdateSubmissionOutcome records the validation outcome on an existing
// submission row.
func UpdateSubmissionOutcome(ctx context.Context, db *sqlx.DB, sub *types.Submission) error {
	query := `
UPDATE epcis_submissions
SET status = ?, is_valid = ?, error_count = ?, warning_count = ?,
    has_structure_errors = ?, has_sequence_errors = ?,
    instance_identifier = ?, completion_date = ?
WHERE id = ?`

	_, err := db.ExecContext(ctx, query,
		sub.Status, sub.IsValid, sub.ErrorCount, sub.WarningCount,
		sub.HasStructureErrors, sub.HasSequenceErrors,
		sub.InstanceIdentifier, sub.CompletionDate, sub.ID)
	if err != nil {
		return fmt.Errorf("updating submission %s: %w", sub.ID, err)
	}
	return nil
}

// FindSubmissionByHash looks up an earlier submission of the same file by
// the same supplier. Returns nil when no duplicate exists.
func FindSubmissionByHash(ctx context.Context, db *sqlx.DB, supplierID, fileHash string) (*types.Submission, error) {
	var sub types.Submission
	query := `SELECT * FROM epcis_submissions WHERE supplier_id = ? AND file_hash = ? LIMIT 1`

	err := db.GetContext(ctx, &sub, query, supplierID, fileHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up submission by hash: %w", err)
	}
	return &sub, nil
}

// GetSubmission fetches a submission by ID. Returns nil when not found.
func GetSubmission(ctx context.Context, db *sqlx.DB, submissionID string) (*types.Submission, error) {
	var sub types.Submission
	query := `SELECT * FROM epcis_submissions WHERE id = ?`

	err := db.GetContext(ctx, &sub, query, submissionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching submission %s: %w", submissionID, err)
	}
	return &sub, nil
}

// GetSubmissionErrors fetches the stored validation errors for a submission.
func GetSubmissionErrors(ctx context.Context, db *sqlx.DB, submissionID string) ([]types.StoredError, error) {
	var rows []types.StoredError
	query := `SELECT * FROM validation_errors WHERE submission_id = ? ORDER BY created_at, id`

	if err := db.SelectContext(ctx, &rows, query, submissionID); err != nil {
		return nil, fmt.Errorf("fetching errors for submission %s: %w", submissionID, err)
	}
	return rows, nil
}

// InsertValidationErrors persists the findings of a validation run.
func InsertValidationErrors(ctx context.Context, db *sqlx.DB, submissionID string, findings []types.ValidationError) error {
	query := `
INSERT INTO validation_errors
    (id, submission_id, error_type, severity, message, line_number, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	for _, finding := range findings {
		_, err := db.ExecContext(ctx, query,
			uuid.New().String(), submissionID, finding.Type, finding.Severity,
			finding.Message, finding.LineNumber, now)
		if err != nil {
			return fmt.Errorf("inserting validation error for %s: %w", submissionID, err)
		}
	}
	return nil
}

// DeleteSubmissionErrors removes stored findings before a revalidation run.
func DeleteSubmissionErrors(ctx context.Context, db *sqlx.DB, submissionID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM validation_errors WHERE submission_id = ?`, submissionID)
	if err != nil {
		return fmt.Errorf("deleting errors for submission %s: %w", submissionID, err)
	}
	return nil
}

// ResolveError marks a stored validation error as resolved. When the last
// unresolved error of a held submission is resolved, the submission moves to
// reprocessed. Returns the submission's resulting status.
func ResolveError(ctx context.Context, db *sqlx.DB, errorID, resolutionNote, resolvedBy string) (string, error) {
	var stored types.StoredError
	err := db.GetContext(ctx, &stored, `SELECT * FROM validation_errors WHERE id = ?`, errorID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("error %s not found", errorID)
	}
	if err != nil {
		return "", fmt.Errorf("fetching error %s: %w", errorID, err)
	}

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
UPDATE validation_errors
SET is_resolved = 1, resolution_note = ?, resolved_at = ?, resolved_by = ?
WHERE id = ?`,
		resolutionNote, now, resolvedBy, errorID)
	if err != nil {
		return "", fmt.Errorf("resolving error %s: %w", errorID, err)
	}

	sub, err := GetSubmission(ctx, db, stored.SubmissionID)
	if err != nil || sub == nil {
		return "", err
	}

	var unresolved int
	err = db.GetContext(ctx, &unresolved, `
SELECT COUNT(*) FROM validation_errors
WHERE submission_id = ? AND severity = 'error' AND is_resolved = 0`,
		stored.SubmissionID)
	if err != nil {
		return "", fmt.Errorf("counting unresolved errors: %w", err)
	}

	if unresolved == 0 && sub.Status == types.StatusHeld {
		_, err = db.ExecContext(ctx,
			`UPDATE epcis_submissions SET status = ? WHERE id = ?`,
			types.StatusReprocessed, sub.ID)
		if err != nil {
			return "", fmt.Errorf("updating submission status: %w", err)
		}
		logger.Info("All errors resolved, submission reprocessed",
			zap.String("submission_id", sub.ID))
		return types.StatusReprocessed, nil
	}

	return sub.Status, nil
}

// QueryHeldSubmissions returns held submissions oldest first, for the
// revalidation pipeline.
func QueryHeldSubmissions(ctx context.Context, db *sqlx.DB, limit int) ([]types.Submission, error) {
	var subs []types.Submission
	query := `SELECT * FROM epcis_submissions WHERE status = ? ORDER BY submission_date LIMIT ?`

	if err := db.SelectContext(ctx, &subs, query, types.StatusHeld, limit); err != nil {
		return nil, fmt.Errorf("querying held submissions: %w", err)
	}
	return subs, nil
}

// GetSupplierByDirectory resolves a watch-directory name to its supplier.
// Returns nil when no supplier claims the directory.
func GetSupplierByDirectory(ctx context.Context, db *sqlx.DB, directoryName string) (*types.Supplier, error) {
	var supplier types.Supplier
	query := `SELECT * FROM suppliers WHERE directory_name = ?`

	err := db.GetContext(ctx, &supplier, query, directoryName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching supplier for directory %s: %w", directoryName, err)
	}
	return &supplier, nil
}

// GetSupplier fetches a supplier by ID. Returns nil when not found.
func GetSupplier(ctx context.Context, db *sqlx.DB, supplierID string) (*types.Supplier, error) {
	var supplier types.Supplier
	err := db.GetContext(ctx, &supplier, `SELECT * FROM suppliers WHERE id = ?`, supplierID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching supplier %s: %w", supplierID, err)
	}
	return &supplier, nil
}

// FindSubmissionByFileName returns the most recent submission with the
// given original file name. Used to correlate error-report emails.
func FindSubmissionByFileName(ctx context.Context, db *sqlx.DB, fileName string) (*types.Submission, error) {
	var sub types.Submission
	query := `SELECT * FROM epcis_submissions WHERE file_name = ? ORDER BY submission_date DESC LIMIT 1`

	err := db.GetContext(ctx, &sub, query, fileName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up submission by file name: %w", err)
	}
	return &sub, nil
}

// InsertRemediationEmail records an outbound vendor remediation message.
func InsertRemediationEmail(ctx context.Context, db *sqlx.DB, email *types.RemediationEmail) error {
	query := `
INSERT INTO remediation_emails
    (id, submission_id, vendor_email, subject, body, priority, due_date, sent_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		email.ID, email.SubmissionID, email.VendorEmail, email.Subject,
		email.Body, email.Priority, email.DueDate, email.SentAt)
	if err != nil {
		return fmt.Errorf("inserting remediation email: %w", err)
	}
	return nil
}
