package types

import "time"

// Severity values for validation findings.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Error type values for validation findings.
const (
	ErrTypeFormat    = "format"
	ErrTypeStructure = "structure"
	ErrTypeField     = "field"
	ErrTypeSequence  = "sequence"
	ErrTypeHierarchy = "hierarchy"
	ErrTypeSystem    = "system"
)

// ValidationError is a single validation finding in a report.
type ValidationError struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	LineNumber int    `json:"line_number,omitempty"`
	Count      int    `json:"count,omitempty"`
}

// ValidationReport is the result of validating one EPCIS document.
type ValidationReport struct {
	Valid      bool                   `json:"valid"`
	Header     map[string]interface{} `json:"header"`
	EventCount int                    `json:"eventCount"`
	Companies  []string               `json:"companies"`
	Errors     []ValidationError      `json:"errors"`
}

// ErrorSummary aggregates report errors into dashboard counters.
type ErrorSummary struct {
	Total          int                      `json:"total"`
	Errors         int                      `json:"errors"`
	Warnings       int                      `json:"warnings"`
	ByType         map[string]TypeBreakdown `json:"by_type"`
	CriticalIssues []string                 `json:"critical_issues"`
}

// TypeBreakdown counts errors and warnings for one error type.
type TypeBreakdown struct {
	Total    int `json:"total"`
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Submission lifecycle statuses.
const (
	StatusReceived    = "received"
	StatusProcessing  = "processing"
	StatusValidated   = "validated"
	StatusFailed      = "failed"
	StatusHeld        = "held"
	StatusReprocessed = "reprocessed"
)

// Submission is a stored EPCIS file submission record.
type Submission struct {
	ID                  string     `db:"id" json:"id"`
	SupplierID          string     `db:"supplier_id" json:"supplier_id"`
	FileName            string     `db:"file_name" json:"file_name"`
	FilePath            string     `db:"file_path" json:"file_path"`
	FileSize            int64      `db:"file_size" json:"file_size"`
	FileHash            string     `db:"file_hash" json:"file_hash"`
	InstanceIdentifier  string     `db:"instance_identifier" json:"instance_identifier,omitempty"`
	Status              string     `db:"status" json:"status"`
	IsValid             bool       `db:"is_valid" json:"is_valid"`
	ErrorCount          int        `db:"error_count" json:"error_count"`
	WarningCount        int        `db:"warning_count" json:"warning_count"`
	HasStructureErrors  bool       `db:"has_structure_errors" json:"has_structure_errors"`
	HasSequenceErrors   bool       `db:"has_sequence_errors" json:"has_sequence_errors"`
	SubmissionDate      time.Time  `db:"submission_date" json:"submission_date"`
	ProcessingDate      *time.Time `db:"processing_date" json:"processing_date,omitempty"`
	CompletionDate      *time.Time `db:"completion_date" json:"completion_date,omitempty"`
	SubmitterID         string     `db:"submitter_id" json:"submitter_id,omitempty"`
}

// StoredError is a persisted validation error row tied to a submission.
type StoredError struct {
	ID             string     `db:"id" json:"id"`
	SubmissionID   string     `db:"submission_id" json:"submission_id"`
	ErrorType      string     `db:"error_type" json:"type"`
	Severity       string     `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	LineNumber     int        `db:"line_number" json:"line_number,omitempty"`
	IsResolved     bool       `db:"is_resolved" json:"is_resolved"`
	ResolutionNote string     `db:"resolution_note" json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy     string     `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// SubmissionResult is the outcome of processing an uploaded file.
type SubmissionResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id,omitempty"`
	Status       string `json:"status,omitempty"`
	ErrorCount   int    `json:"error_count"`
	WarningCount int    `json:"warning_count"`
}

// WatchedFile is a file picked up from the drop directory.
type WatchedFile struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	SupplierID string    `json:"supplier_id"`
	DetectedAt time.Time `json:"detected_at"`
}

// Supplier is a registered trading partner allowed to submit files.
type Supplier struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	ContactEmail  string    `db:"contact_email" json:"contact_email"`
	DirectoryName string    `db:"directory_name" json:"directory_name"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// EmailData is an inbound error-report email fetched from the mailbox.
type EmailData struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// ExtractedData holds the references pulled out of an error-report email.
type ExtractedData struct {
	PONumbers        []string `json:"po_numbers"`
	LotNumbers       []string `json:"lot_numbers"`
	VendorName       string   `json:"vendor_name,omitempty"`
	ErrorDescription string   `json:"error_description,omitempty"`
	SubmissionID     string   `json:"submission_id,omitempty"`
	FileName         string   `json:"file_name,omitempty"`
}

// ActionPlan is the remediation plan sent to a vendor after validation
// failures.
type ActionPlan struct {
	PONumber        string        `json:"po_number"`
	LotNumber       string        `json:"lot_number"`
	VendorEmail     string        `json:"vendor_email"`
	VendorName      string        `json:"vendor_name"`
	Errors          []StoredError `json:"errors"`
	Recommendations []string      `json:"recommendations"`
	Priority        string        `json:"priority"`
	DueDate         time.Time     `json:"due_date"`
}

// RemediationEmail records an outbound vendor remediation message.
type RemediationEmail struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	VendorEmail  string    `db:"vendor_email" json:"vendor_email"`
	Subject      string    `db:"subject" json:"subject"`
	Body         string    `db:"body" json:"body"`
	Priority     string    `db:"priority" json:"priority"`
	DueDate      time.Time `db:"due_date" json:"due_date"`
	SentAt       time.Time `db:"sent_at" json:"sent_at"`
}
