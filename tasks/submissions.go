package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/epcis"
	"github.com/trackvision/tv-epcis-validator/types"
)

// SubmissionService handles EPCIS file submissions: deduplication, storage,
// validation, and persistence of the outcome.
type SubmissionService struct {
	db        *sqlx.DB
	storage   StorageHandler
	validator *epcis.DocumentValidator
}

// NewSubmissionService creates a submission service.
func NewSubmissionService(db *sqlx.DB, storage StorageHandler) *SubmissionService {
	return &SubmissionService{
		db:        db,
		storage:   storage,
		validator: epcis.NewDocumentValidator(),
	}
}

// SubmissionDetail is a submission together with its stored findings.
type SubmissionDetail struct {
	types.Submission
	Errors []types.StoredError `json:"errors"`
}

// ProcessSubmission runs the full intake flow for one uploaded file.
// Duplicate files from the same supplier are rejected without revalidation.
func (s *SubmissionService) ProcessSubmission(ctx context.Context, content []byte, fileName, supplierID, submitterID string) (*types.SubmissionResult, error) {
	submissionID := uuid.New().String()

	hash := sha256.Sum256(content)
	fileHash := hex.EncodeToString(hash[:])

	existing, err := FindSubmissionByHash(ctx, s.db, supplierID, fileHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.Info("Duplicate submission rejected",
			zap.String("supplier_id", supplierID),
			zap.String("existing_id", existing.ID))
		return &types.SubmissionResult{
			Success:      false,
			Message:      "Duplicate submission detected",
			SubmissionID: existing.ID,
			Status:       existing.Status,
		}, nil
	}

	isXML := strings.HasSuffix(strings.ToLower(fileName), ".xml")

	// Store under the submission ID to avoid name collisions
	storageName := submissionID + filepath.Ext(fileName)
	location, err := s.storage.Store(ctx, content, storageName, supplierID)
	if err != nil {
		return nil, fmt.Errorf("storing submission file: %w", err)
	}

	now := time.Now().UTC()
	sub := &types.Submission{
		ID:             submissionID,
		SupplierID:     supplierID,
		FileName:       fileName,
		FilePath:       location,
		FileSize:       int64(len(content)),
		FileHash:       fileHash,
		Status:         types.StatusProcessing,
		SubmissionDate: now,
		ProcessingDate: &now,
		SubmitterID:    submitterID,
	}
	if err := InsertSubmission(ctx, s.db, sub); err != nil {
		return nil, err
	}

	report := s.validator.ValidateDocument(content, isXML)

	if err := s.recordOutcome(ctx, sub, report); err != nil {
		s.markFailed(ctx, submissionID)
		return nil, err
	}

	message := "File processed but has validation errors"
	if report.Valid {
		message = "File successfully processed and validated"
	}

	return &types.SubmissionResult{
		Success:      report.Valid,
		Message:      message,
		SubmissionID: submissionID,
		Status:       sub.Status,
		ErrorCount:   sub.ErrorCount,
		WarningCount: sub.WarningCount,
	}, nil
}

// Revalidate re-runs validation for a stored submission, replacing its
// findings and outcome. Used by the revalidation pipeline on held files.
func (s *SubmissionService) Revalidate(ctx context.Context, sub *types.Submission) (*types.ValidationReport, error) {
	content, err := s.storage.Retrieve(ctx, sub.FilePath)
	if err != nil {
		return nil, fmt.Errorf("retrieving submission file: %w", err)
	}

	isXML := strings.HasSuffix(strings.ToLower(sub.FileName), ".xml")
	report := s.validator.ValidateDocument(content, isXML)

	if err := DeleteSubmissionErrors(ctx, s.db, sub.ID); err != nil {
		return nil, err
	}
	if err := s.recordOutcome(ctx, sub, report); err != nil {
		return nil, err
	}

	logger.Info("Submission revalidated",
		zap.String("submission_id", sub.ID),
		zap.Bool("valid", report.Valid))
	return report, nil
}

// GetSubmissionDetail fetches a submission with its findings. Returns nil
// when the submission does not exist.
func (s *SubmissionService) GetSubmissionDetail(ctx context.Context, submissionID string) (*SubmissionDetail, error) {
	sub, err := GetSubmission(ctx, s.db, submissionID)
	if err != nil || sub == nil {
		return nil, err
	}

	findings, err := GetSubmissionErrors(ctx, s.db, submissionID)
	if err != nil {
		return nil, err
	}

	return &SubmissionDetail{Submission: *sub, Errors: findings}, nil
}

// recordOutcome updates the submission row from a validation report and
// persists the findings.
func (s *SubmissionService) recordOutcome(ctx context.Context, sub *types.Submission, report *types.ValidationReport) error {
	errorCount, warningCount := 0, 0
	hasStructure, hasSequence := false, false
	for _, e := range report.Errors {
		if e.Severity == types.SeverityError {
			errorCount++
		} else {
			warningCount++
		}
		if e.Type == types.ErrTypeStructure {
			hasStructure = true
		}
		if e.Type == types.ErrTypeSequence {
			hasSequence = true
		}
	}

	sub.Status = types.StatusHeld
	if report.Valid {
		sub.Status = types.StatusValidated
	}
	sub.IsValid = report.Valid
	sub.ErrorCount = errorCount
	sub.WarningCount = warningCount
	sub.HasStructureErrors = hasStructure
	sub.HasSequenceErrors = hasSequence
	if instanceID, ok := report.Header["instance_identifier"].(string); ok {
		sub.InstanceIdentifier = instanceID
	}
	completed := time.Now().UTC()
	sub.CompletionDate = &completed

	if err := UpdateSubmissionOutcome(ctx, s.db, sub); err != nil {
		return err
	}
	return InsertValidationErrors(ctx, s.db, sub.ID, report.Errors)
}

func (s *SubmissionService) markFailed(ctx context.Context, submissionID string) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE epcis_submissions SET status = ? WHERE id = ?`,
		types.StatusFailed, submissionID)
	if err != nil {
		logger.Error("Failed to mark submission as failed",
			zap.String("submission_id", submissionID),
			zap.Error(err))
	}
}
