package epcis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/trackvision/tv-epcis-validator/types"
)

var tzOffsetPattern = regexp.MustCompile(`^[+-]\d{2}:\d{2}$`)

// EventValidator checks individual EPCIS events against the DSCSA field
// rules. It holds no per-document state and is safe to share across calls.
type EventValidator struct{}

// NewEventValidator creates an event validator.
func NewEventValidator() *EventValidator {
	return &EventValidator{}
}

// ValidateEvent validates a single event against the field rules, using
// authorizedCompanies to check EPC ownership.
func (v *EventValidator) ValidateEvent(event map[string]interface{}, authorizedCompanies map[string]bool) []types.ValidationError {
	var errs []types.ValidationError

	if len(event) == 0 {
		addError(&errs, types.ErrTypeStructure, types.SeverityError, "Empty event found")
		return errs
	}

	v.validateRequiredFields(event, &errs)
	v.validateEventTime(event, &errs)
	v.validateEPCs(event, authorizedCompanies, &errs)
	v.validateBizStep(event, &errs)
	v.validateDisposition(event, &errs)
	v.validateLocationIdentifiers(event, &errs)
	v.validateILMD(event, &errs)

	if getString(event, "eventType") == "AggregationEvent" {
		v.validateAggregationEvent(event, &errs)
	}
	if strings.HasSuffix(getString(event, "bizStep"), "shipping") {
		v.validateShippingEvent(event, &errs)
	}

	v.validateRecordTime(event, &errs)

	return errs
}

func (v *EventValidator) validateRequiredFields(event map[string]interface{}, errs *[]types.ValidationError) {
	eventType := getString(event, "eventType")
	fields, ok := requiredFields[eventType]
	if !ok {
		return
	}

	for _, field := range fields {
		if fieldEmpty(event, field) {
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Missing required field for %s: %s", eventType, field))
		}
	}

	// parentID is mandatory only when an AggregationEvent adds children
	if eventType == "AggregationEvent" && getString(event, "action") == "ADD" && fieldEmpty(event, "parentID") {
		addError(errs, types.ErrTypeField, types.SeverityError,
			"parentID required for ADD AggregationEvent")
	}
}

func (v *EventValidator) validateEventTime(event map[string]interface{}, errs *[]types.ValidationError) {
	if eventTime := getString(event, "eventTime"); eventTime != "" {
		if _, err := parseEventTime(eventTime); err != nil {
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Invalid eventTime format: %s", eventTime))
		}
	}

	if tzOffset := getString(event, "eventTimeZoneOffset"); tzOffset != "" && !isValidTimezone(tzOffset) {
		addError(errs, types.ErrTypeField, types.SeverityError,
			fmt.Sprintf("Invalid eventTimeZoneOffset format: %s", tzOffset))
	}
}

func (v *EventValidator) validateEPCs(event map[string]interface{}, authorizedCompanies map[string]bool, errs *[]types.ValidationError) {
	epcRefs, hasEPCDetail := getEPCRefs(event, "epcList_detailed")
	childRefs, hasChildDetail := getEPCRefs(event, "childEPCs_detailed")

	if hasEPCDetail || hasChildDetail {
		// XML events carry per-EPC line numbers
		for _, ref := range append(epcRefs, childRefs...) {
			v.checkEPC(ref.Value, ref.LineNumber, authorizedCompanies, errs)
		}
		return
	}

	// JSON events fall back to the event-level line number
	line := getInt(event, "_line_number")
	for _, epc := range append(getStringList(event, "epcList"), getStringList(event, "childEPCs")...) {
		v.checkEPC(epc, line, authorizedCompanies, errs)
	}
}

func (v *EventValidator) checkEPC(epc string, line int, authorizedCompanies map[string]bool, errs *[]types.ValidationError) {
	if !ValidateEPCFormat(epc) {
		addErrorLine(errs, types.ErrTypeField, types.SeverityError,
			fmt.Sprintf("Invalid EPC format: %s", epc), line)
	} else if !ValidateCompanyPrefix(epc, authorizedCompanies) {
		addErrorLine(errs, types.ErrTypeField, types.SeverityError,
			fmt.Sprintf("Unauthorized company prefix in EPC: %s", epc), line)
	}
}

func (v *EventValidator) validateBizStep(event map[string]interface{}, errs *[]types.ValidationError) {
	bizStep := getString(event, "bizStep")
	if bizStep == "" {
		return
	}
	step := lastColonSegment(bizStep)
	if !validBizSteps[step] {
		addError(errs, types.ErrTypeField, types.SeverityError,
			fmt.Sprintf("Invalid business step: %s", step))
	}
}

func (v *EventValidator) validateDisposition(event map[string]interface{}, errs *[]types.ValidationError) {
	disposition := getString(event, "disposition")
	if disposition == "" {
		return
	}
	disp := lastColonSegment(disposition)
	if !validDispositions[disp] {
		addError(errs, types.ErrTypeField, types.SeverityError,
			fmt.Sprintf("Invalid disposition: %s", disp))
	}
}

func (v *EventValidator) validateLocationIdentifiers(event map[string]interface{}, errs *[]types.ValidationError) {
	for _, locType := range []string{"readPoint", "bizLocation"} {
		raw, ok := event[locType]
		if !ok {
			continue
		}

		location, isMap := raw.(map[string]interface{})
		locID, hasID := "", false
		if isMap {
			locID, hasID = location["id"].(string)
		}
		if !isMap || !hasID {
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Invalid %s format: must be object with 'id' field", locType))
			continue
		}
		if !strings.HasPrefix(locID, "urn:epc:id:sgln:") {
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Invalid %s identifier format: must be SGLN", locType))
		}
	}
}

func (v *EventValidator) validateILMD(event map[string]interface{}, errs *[]types.ValidationError) {
	if !strings.HasSuffix(getString(event, "bizStep"), "commissioning") {
		return
	}
	ilmd := getMap(event, "ilmd")
	if _, present := event["ilmd"]; !present || ilmd == nil {
		return
	}

	for _, field := range []string{"lotNumber", "itemExpirationDate"} {
		raw, ok := ilmd[field]
		if !ok || raw == nil {
			raw = ilmd["cbvmda:"+field]
		}

		value, isString := raw.(string)
		switch {
		case raw == nil || (isString && value == ""):
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Missing required ILMD field: %s", field))
			continue
		case !isString:
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Invalid type for ILMD field %s", field))
			continue
		}

		if strings.HasSuffix(field, "Date") {
			if _, err := time.Parse("2006-01-02", value); err != nil {
				addError(errs, types.ErrTypeField, types.SeverityError,
					fmt.Sprintf("Invalid date format in ILMD field %s: %s", field, value))
			}
		}
	}
}

func (v *EventValidator) validateAggregationEvent(event map[string]interface{}, errs *[]types.ValidationError) {
	if getString(event, "action") != "ADD" {
		return
	}
	if getString(event, "parentID") == "" && !fieldEmpty(event, "childEPCs") {
		addError(errs, types.ErrTypeField, types.SeverityError,
			"parentID required for ADD AggregationEvent with children")
	}
}

func (v *EventValidator) validateShippingEvent(event map[string]interface{}, errs *[]types.ValidationError) {
	foundTxnTypes := map[string]bool{}
	for _, txn := range getMapList(event, "bizTransactionList") {
		foundTxnTypes[getString(txn, "type")] = true
	}
	for _, required := range requiredShippingTransactionTypes {
		if !foundTxnTypes[required] {
			addError(errs, types.ErrTypeField, types.SeverityError,
				fmt.Sprintf("Missing required transaction type in shipping event: %s", required))
		}
	}

	extension := getMap(event, "extension")
	for _, listType := range shippingListKeys {
		foundPartyTypes := map[string]bool{}
		for _, entry := range getMapList(extension, listType) {
			foundPartyTypes[lastColonSegment(getString(entry, "type"))] = true
		}
		for _, required := range requiredShippingListTypes {
			if !foundPartyTypes[required] {
				addError(errs, types.ErrTypeField, types.SeverityError,
					fmt.Sprintf("Missing required %s type: %s", listType, required))
			}
		}
	}
}

func (v *EventValidator) validateRecordTime(event map[string]interface{}, errs *[]types.ValidationError) {
	recordTime := getString(event, "recordTime")
	if recordTime == "" {
		return
	}
	recordDt, err := parseEventTime(recordTime)
	if err != nil {
		return
	}
	eventDt, err := parseEventTime(getString(event, "eventTime"))
	if err != nil {
		return
	}
	if recordDt.After(eventDt) {
		addError(errs, types.ErrTypeField, types.SeverityError,
			fmt.Sprintf("recordTime %s is later than eventTime %s", recordTime, getString(event, "eventTime")))
	}
}

// isValidTimezone checks the ±HH:MM offset form with offsets limited to
// 15-minute increments and at most 14 hours.
func isValidTimezone(tz string) bool {
	if !tzOffsetPattern.MatchString(tz) {
		return false
	}
	hours, _ := strconv.Atoi(tz[1:3])
	minutes, _ := strconv.Atoi(tz[4:6])
	return hours <= 14 && (minutes == 0 || minutes == 15 || minutes == 30 || minutes == 45)
}
