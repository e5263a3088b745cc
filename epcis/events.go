package epcis

import (
	"fmt"
	"strings"
	"time"

	"github.com/trackvision/tv-epcis-validator/types"
)

// Events are carried as the generic mappings both wire formats decode to.
// The accessors below normalize the value shapes the two parsers produce
// (the XML path yields []string and []map[string]interface{}; the JSON path
// yields []interface{}).

// EPCRef pairs an EPC value with the source line it was read from.
type EPCRef struct {
	Value      string `json:"value"`
	LineNumber int    `json:"line_number"`
}

func getString(event map[string]interface{}, key string) string {
	if event == nil {
		return ""
	}
	if s, ok := event[key].(string); ok {
		return s
	}
	return ""
}

func getInt(event map[string]interface{}, key string) int {
	if event == nil {
		return 0
	}
	switch v := event[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func getMap(event map[string]interface{}, key string) map[string]interface{} {
	if event == nil {
		return nil
	}
	if m, ok := event[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}

func getStringList(event map[string]interface{}, key string) []string {
	if event == nil {
		return nil
	}
	switch v := event[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func getMapList(event map[string]interface{}, key string) []map[string]interface{} {
	if event == nil {
		return nil
	}
	switch v := event[key].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func getEPCRefs(event map[string]interface{}, key string) ([]EPCRef, bool) {
	if event == nil {
		return nil, false
	}
	refs, ok := event[key].([]EPCRef)
	return refs, ok
}

// fieldEmpty reports whether an event field is absent or holds an empty
// value (empty string, list, or mapping).
func fieldEmpty(event map[string]interface{}, key string) bool {
	v, ok := event[key]
	if !ok || v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []interface{}:
		return len(t) == 0
	case []map[string]interface{}:
		return len(t) == 0
	case []EPCRef:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

// lastColonSegment extracts the vocabulary token from a CBV URN,
// e.g. "urn:epcglobal:cbv:bizstep:shipping" -> "shipping".
func lastColonSegment(s string) string {
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// parseEventTime parses an eventTime value. Only UTC instants with a
// trailing Z are accepted, with or without fractional seconds; the zone
// offset is carried separately in eventTimeZoneOffset.
func parseEventTime(s string) (time.Time, error) {
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, fmt.Errorf("eventTime %q must end with Z", s)
	}
	return time.Parse(time.RFC3339, s)
}

// parseInstant is the lenient variant used by the sequence validator: it
// additionally accepts explicit offsets and naive timestamps so that
// chronology checks still run on events the field validator has already
// flagged.
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

func addError(errs *[]types.ValidationError, errType, severity, message string) {
	*errs = append(*errs, types.ValidationError{
		Type:     errType,
		Severity: severity,
		Message:  message,
	})
}

func addErrorLine(errs *[]types.ValidationError, errType, severity, message string, line int) {
	*errs = append(*errs, types.ValidationError{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		LineNumber: line,
	})
}
