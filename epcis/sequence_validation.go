package epcis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/trackvision/tv-epcis-validator/types"
)

// SequenceValidator enforces the DSCSA chain-of-custody rules across the
// events of a single document. State is scoped to one validation call;
// construct a fresh instance per document.
type SequenceValidator struct {
	commissionedSGTINs map[string]bool
	commissionedSSCCs  map[string]bool
	aggregated         map[string]string               // child EPC -> parent EPC
	eventTimes         map[string]map[string]time.Time // EPC -> step -> time
}

// NewSequenceValidator creates a sequence validator with empty tracking
// state.
func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		commissionedSGTINs: map[string]bool{},
		commissionedSSCCs:  map[string]bool{},
		aggregated:         map[string]string{},
		eventTimes:         map[string]map[string]time.Time{},
	}
}

type stepInstant struct {
	Step string
	At   time.Time
}

// ValidateSequence validates the chronological and predecessor rules over
// the full event list.
func (s *SequenceValidator) ValidateSequence(events []map[string]interface{}) []types.ValidationError {
	var errs []types.ValidationError

	sequences := map[string][]stepInstant{}
	var epcOrder []string // first-seen order, so reports are deterministic

	// Pass 1: collect all commissioned items
	for _, event := range events {
		if strings.HasSuffix(getString(event, "bizStep"), "commissioning") {
			s.recordCommissioning(event)
		}
	}

	// Pass 2: validate each event against the accumulated state
	for _, event := range events {
		s.validateEventInSequence(event, sequences, &epcOrder, &errs)
	}

	// Pass 3: ordinal and terminal checks over each EPC's full sequence
	s.validateCompleteSequences(sequences, epcOrder, &errs)

	return errs
}

func (s *SequenceValidator) recordCommissioning(event map[string]interface{}) {
	for _, epc := range getStringList(event, "epcList") {
		switch {
		case strings.HasPrefix(epc, "urn:epc:id:sgtin:"):
			s.commissionedSGTINs[epc] = true
		case strings.HasPrefix(epc, "urn:epc:id:sscc:"):
			s.commissionedSSCCs[epc] = true
		}
	}
}

func (s *SequenceValidator) validateEventInSequence(event map[string]interface{}, sequences map[string][]stepInstant, epcOrder *[]string, errs *[]types.ValidationError) {
	eventDt, err := parseInstant(strings.Replace(getString(event, "eventTime"), "Z", "+00:00", 1))
	if err != nil {
		addError(errs, types.ErrTypeSequence, types.SeverityError,
			fmt.Sprintf("Error processing event sequence: %v", err))
		return
	}

	step := lastColonSegment(getString(event, "bizStep"))
	epcs := append(getStringList(event, "epcList"), getStringList(event, "childEPCs")...)

	for _, epc := range epcs {
		// Chronological order per EPC
		if prevTimes := s.eventTimes[epc]; len(prevTimes) > 0 {
			maxPrev := time.Time{}
			for _, t := range prevTimes {
				if t.After(maxPrev) {
					maxPrev = t
				}
			}
			if eventDt.Before(maxPrev) {
				addError(errs, types.ErrTypeSequence, types.SeverityError,
					fmt.Sprintf("Event time %s for %s is before previous event time %s for %s",
						eventDt.Format(time.RFC3339), step, maxPrev.Format(time.RFC3339), epc))
			}
		}

		// Items must be commissioned before they appear in later steps
		if strings.HasPrefix(epc, "urn:epc:id:sgtin:") && !s.commissionedSGTINs[epc] {
			addError(errs, types.ErrTypeSequence, types.SeverityError,
				fmt.Sprintf("SGTIN %s not commissioned before %s", epc, step))
		} else if strings.HasPrefix(epc, "urn:epc:id:sscc:") && !s.commissionedSSCCs[epc] {
			addError(errs, types.ErrTypeSequence, types.SeverityError,
				fmt.Sprintf("SSCC %s not commissioned before %s", epc, step))
		}

		rule, hasRule := sequenceRules[step]
		if !hasRule {
			continue
		}

		// Predecessor requirement
		if len(rule.Predecessors) > 0 {
			seen := false
			for _, prior := range sequences[epc] {
				for _, pred := range rule.Predecessors {
					if prior.Step == pred {
						seen = true
					}
				}
			}
			if !seen {
				addError(errs, types.ErrTypeSequence, types.SeverityError,
					fmt.Sprintf("EPC %s has %s event without required predecessor(s): %s",
						epc, step, strings.Join(rule.Predecessors, ", ")))
			}
		}

		if _, known := sequences[epc]; !known {
			*epcOrder = append(*epcOrder, epc)
		}
		sequences[epc] = append(sequences[epc], stepInstant{Step: step, At: eventDt})
		if s.eventTimes[epc] == nil {
			s.eventTimes[epc] = map[string]time.Time{}
		}
		s.eventTimes[epc][step] = eventDt

		// Disposition must fit the step
		if disposition := getString(event, "disposition"); disposition != "" {
			disp := lastColonSegment(disposition)
			allowed := false
			for _, d := range rule.AllowedDispositions {
				if d == disp {
					allowed = true
				}
			}
			if !allowed {
				addError(errs, types.ErrTypeSequence, types.SeverityError,
					fmt.Sprintf("Invalid disposition %s for %s event", disp, step))
			}
		}
	}
}

func (s *SequenceValidator) validateCompleteSequences(sequences map[string][]stepInstant, epcOrder []string, errs *[]types.ValidationError) {
	for _, epc := range epcOrder {
		steps := sequences[epc]
		if len(steps) == 0 {
			continue
		}

		// Sort by time, preserving source order for ties
		sorted := make([]stepInstant, len(steps))
		copy(sorted, steps)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].At.Before(sorted[j].At)
		})

		currentIdx := -1
		for _, st := range sorted {
			idx := stepOrdinal(st.Step)
			if idx < 0 {
				continue
			}
			if idx <= currentIdx {
				addError(errs, types.ErrTypeSequence, types.SeverityError,
					fmt.Sprintf("Out of order event for %s: %s after %s",
						epc, st.Step, eventSequence[currentIdx]))
			}
			currentIdx = idx
		}

		lastStep := sorted[len(sorted)-1].Step
		if !terminalSteps[lastStep] {
			addError(errs, types.ErrTypeSequence, types.SeverityWarning,
				fmt.Sprintf("Incomplete sequence for %s: ends with %s", epc, lastStep))
		}
	}
}

// ValidatePackagingHierarchy checks aggregation and disaggregation
// consistency across the document's AggregationEvents.
func (s *SequenceValidator) ValidatePackagingHierarchy(events []map[string]interface{}) []types.ValidationError {
	var errs []types.ValidationError

	for _, event := range events {
		if getString(event, "eventType") != "AggregationEvent" {
			continue
		}

		action := getString(event, "action")
		parentID := getString(event, "parentID")
		childEPCs := getStringList(event, "childEPCs")

		switch action {
		case "ADD":
			for _, child := range childEPCs {
				if existing, ok := s.aggregated[child]; ok {
					addError(&errs, types.ErrTypeHierarchy, types.SeverityError,
						fmt.Sprintf("Item %s already aggregated to %s", child, existing))
				} else {
					s.aggregated[child] = parentID
				}
			}
		case "DELETE":
			for _, child := range childEPCs {
				actual, ok := s.aggregated[child]
				if !ok {
					addError(&errs, types.ErrTypeHierarchy, types.SeverityError,
						fmt.Sprintf("Cannot disaggregate %s, was not previously aggregated", child))
					continue
				}
				if actual != parentID {
					addError(&errs, types.ErrTypeHierarchy, types.SeverityError,
						fmt.Sprintf("Cannot disaggregate %s from %s, was aggregated to %s", child, parentID, actual))
				}
				delete(s.aggregated, child)
			}
		}
	}

	return errs
}
