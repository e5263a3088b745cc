package epcis

import (
	"fmt"
	"sort"

	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/types"
)

// DocumentValidator orchestrates parsing, event validation, sequence
// validation, and error aggregation for one document at a time. Sequence
// state is constructed per call, so a single DocumentValidator may be
// shared across goroutines.
type DocumentValidator struct {
	eventValidator *EventValidator
}

// NewDocumentValidator creates a document validator.
func NewDocumentValidator() *DocumentValidator {
	return &DocumentValidator{
		eventValidator: NewEventValidator(),
	}
}

// ValidateDocument validates a complete EPCIS document and returns a
// report. It never panics: internal failures surface as a single system
// error with valid=false.
func (v *DocumentValidator) ValidateDocument(content []byte, isXML bool) (report *types.ValidationReport) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Validation panicked", zap.Any("cause", r))
			report = &types.ValidationReport{
				Valid:     false,
				Companies: []string{},
				Errors: []types.ValidationError{{
					Type:     types.ErrTypeSystem,
					Severity: types.SeverityError,
					Message:  fmt.Sprintf("System error during validation: %v", r),
				}},
			}
		}
	}()

	header, events, companies, parseErrors := ParseDocument(content, isXML)

	errs := make([]types.ValidationError, 0, len(parseErrors))
	errs = append(errs, parseErrors...)

	if len(errs) == 0 {
		// The header's sender and receiver define who may own EPCs in this
		// document. Headerless documents fall back to the prefixes observed
		// in the EPC lists themselves.
		authorized := AuthorizedCompanies(header)
		if len(authorized) == 0 {
			authorized = companies
		}

		for _, event := range events {
			errs = append(errs, v.eventValidator.ValidateEvent(event, authorized)...)
		}

		sequenceValidator := NewSequenceValidator()
		errs = append(errs, sequenceValidator.ValidateSequence(events)...)
		errs = append(errs, sequenceValidator.ValidatePackagingHierarchy(events)...)

		aggregator := NewErrorAggregator()
		for _, e := range errs {
			aggregator.Add(e)
		}
		errs = aggregator.Aggregated()
	}

	valid := true
	for _, e := range errs {
		if e.Severity == types.SeverityError {
			valid = false
			break
		}
	}

	companyList := make([]string, 0, len(companies))
	for prefix := range companies {
		companyList = append(companyList, prefix)
	}
	sort.Strings(companyList)

	logger.Info("Document validated",
		zap.Bool("valid", valid),
		zap.Int("events", len(events)),
		zap.Int("findings", len(errs)))

	return &types.ValidationReport{
		Valid:      valid,
		Header:     header,
		EventCount: len(events),
		Companies:  companyList,
		Errors:     errs,
	}
}

// SummarizeErrors builds dashboard counters from a validation report.
func SummarizeErrors(report *types.ValidationReport) types.ErrorSummary {
	summary := types.ErrorSummary{
		ByType:         map[string]types.TypeBreakdown{},
		CriticalIssues: []string{},
	}
	if report == nil {
		return summary
	}

	summary.Total = len(report.Errors)
	for _, e := range report.Errors {
		breakdown := summary.ByType[e.Type]
		breakdown.Total++

		if e.Severity == types.SeverityError {
			summary.Errors++
			breakdown.Errors++
		} else {
			summary.Warnings++
			breakdown.Warnings++
		}
		summary.ByType[e.Type] = breakdown

		if e.Severity == types.SeverityError && (e.Type == types.ErrTypeSequence || e.Type == types.ErrTypeHierarchy) {
			summary.CriticalIssues = append(summary.CriticalIssues, e.Message)
		}
	}

	return summary
}
