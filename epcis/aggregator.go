package epcis

import (
	"fmt"
	"strings"

	"github.com/trackvision/tv-epcis-validator/types"
)

const epcMarker = "for urn:epc:"

type groupKey struct {
	Type        string
	Severity    string
	BaseMessage string
	LineNumber  int
}

type rawError struct {
	Message    string
	Identifier string
	LineNumber int
}

// ErrorAggregator collects validation errors and collapses repeats of the
// same finding across many EPCs into one entry with examples. Its lifetime
// is one validation call.
type ErrorAggregator struct {
	groups map[groupKey][]rawError
	order  []groupKey
}

// NewErrorAggregator creates an empty aggregator.
func NewErrorAggregator() *ErrorAggregator {
	return &ErrorAggregator{groups: map[groupKey][]rawError{}}
}

// Add records one error. Messages mentioning an EPC URN are split into a
// base message and the identifier, so that the same finding over different
// EPCs on the same line groups together.
func (a *ErrorAggregator) Add(err types.ValidationError) {
	base := err.Message
	identifier := ""
	if idx := strings.Index(err.Message, epcMarker); idx >= 0 {
		base = strings.TrimSpace(err.Message[:idx])
		identifier = "urn:epc:" + strings.TrimSpace(err.Message[idx+len(epcMarker):])
	}

	key := groupKey{
		Type:        err.Type,
		Severity:    err.Severity,
		BaseMessage: base,
		LineNumber:  err.LineNumber,
	}
	if _, seen := a.groups[key]; !seen {
		a.order = append(a.order, key)
	}
	a.groups[key] = append(a.groups[key], rawError{
		Message:    err.Message,
		Identifier: identifier,
		LineNumber: err.LineNumber,
	})
}

// Aggregated returns the grouped error list in first-seen order. Singleton
// groups keep their original message; larger groups are summarized with up
// to three example identifiers.
func (a *ErrorAggregator) Aggregated() []types.ValidationError {
	aggregated := make([]types.ValidationError, 0, len(a.order))

	for _, key := range a.order {
		group := a.groups[key]

		if len(group) == 1 {
			aggregated = append(aggregated, types.ValidationError{
				Type:       key.Type,
				Severity:   key.Severity,
				Message:    group[0].Message,
				LineNumber: group[0].LineNumber,
			})
			continue
		}

		var examples []string
		for _, e := range group[:min(3, len(group))] {
			if e.Identifier != "" {
				examples = append(examples, e.Identifier)
			}
		}

		message := fmt.Sprintf("%s (%d items)", key.BaseMessage, len(group))
		if len(examples) > 0 {
			message += "\nExamples: " + strings.Join(examples, ", ")
			if len(group) > 3 {
				message += fmt.Sprintf("\n...and %d more", len(group)-3)
			}
		}

		aggregated = append(aggregated, types.ValidationError{
			Type:       key.Type,
			Severity:   key.Severity,
			Message:    message,
			Count:      len(group),
			LineNumber: key.LineNumber,
		})
	}

	return aggregated
}
