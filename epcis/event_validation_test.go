package epcis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackvision/tv-epcis-validator/types"
)

var testCompanies = map[string]bool{"0614141": true}

func validObjectEvent() map[string]interface{} {
	return map[string]interface{}{
		"eventType":           "ObjectEvent",
		"eventTime":           "2024-01-15T10:30:47Z",
		"eventTimeZoneOffset": "+00:00",
		"epcList":             []string{"urn:epc:id:sgtin:0614141.107346.2017"},
		"action":              "ADD",
		"bizStep":             "urn:epcglobal:cbv:bizstep:commissioning",
		"disposition":         "urn:epcglobal:cbv:disp:active",
	}
}

func errorMessages(errs []types.ValidationError) []string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return messages
}

func TestValidateEventCleanObjectEvent(t *testing.T) {
	v := NewEventValidator()
	errs := v.ValidateEvent(validObjectEvent(), testCompanies)
	assert.Empty(t, errs)
}

func TestValidateEventEmpty(t *testing.T) {
	v := NewEventValidator()
	errs := v.ValidateEvent(map[string]interface{}{}, testCompanies)
	require.Len(t, errs, 1)
	assert.Equal(t, "Empty event found", errs[0].Message)
	assert.Equal(t, types.ErrTypeStructure, errs[0].Type)
}

func TestValidateEventMissingRequiredFields(t *testing.T) {
	v := NewEventValidator()
	errs := v.ValidateEvent(map[string]interface{}{"eventType": "ObjectEvent"}, testCompanies)

	messages := errorMessages(errs)
	assert.Contains(t, messages, "Missing required field for ObjectEvent: eventTime")
	assert.Contains(t, messages, "Missing required field for ObjectEvent: eventTimeZoneOffset")
	assert.Contains(t, messages, "Missing required field for ObjectEvent: epcList")
	assert.Contains(t, messages, "Missing required field for ObjectEvent: action")
	assert.Len(t, errs, 4)
}

func TestValidateEventTransactionEventRequiresBizTransactions(t *testing.T) {
	v := NewEventValidator()
	event := map[string]interface{}{
		"eventType":           "TransactionEvent",
		"eventTime":           "2024-01-15T10:30:47Z",
		"eventTimeZoneOffset": "+00:00",
		"epcList":             []string{"urn:epc:id:sgtin:0614141.107346.2017"},
		"action":              "ADD",
	}
	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Missing required field for TransactionEvent: bizTransactionList")
}

func TestValidateEventBadTimes(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["eventTime"] = "invalid-time"
	event["eventTimeZoneOffset"] = "invalid"

	errs := v.ValidateEvent(event, testCompanies)
	messages := errorMessages(errs)
	assert.Contains(t, messages, "Invalid eventTime format: invalid-time")
	assert.Contains(t, messages, "Invalid eventTimeZoneOffset format: invalid")
	assert.Len(t, errs, 2)
}

func TestValidateEventTimezoneOffsets(t *testing.T) {
	v := NewEventValidator()
	for _, tz := range []string{"+00:00", "-05:00", "+14:00", "+05:30", "-09:45"} {
		event := validObjectEvent()
		event["eventTimeZoneOffset"] = tz
		assert.Empty(t, v.ValidateEvent(event, testCompanies), "offset %s", tz)
	}
	for _, tz := range []string{"+15:00", "+02:20", "0000", "+2:00", "UTC"} {
		event := validObjectEvent()
		event["eventTimeZoneOffset"] = tz
		assert.NotEmpty(t, v.ValidateEvent(event, testCompanies), "offset %s", tz)
	}
}

func TestValidateEventRejectsEventTimeWithoutUTCDesignator(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["eventTime"] = "2024-01-15T10:30:47+02:00"

	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Invalid eventTime format: 2024-01-15T10:30:47+02:00")
}

func TestValidateEventBadEPCFormat(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["epcList"] = []string{"urn:epc:id:sgtin:0614141.107346"}

	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Invalid EPC format: urn:epc:id:sgtin:0614141.107346")
}

func TestValidateEventUnauthorizedPrefix(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["epcList"] = []string{"urn:epc:id:sgtin:9999999.107346.2017"}

	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Unauthorized company prefix in EPC: urn:epc:id:sgtin:9999999.107346.2017")
}

func TestValidateEventUsesDetailedLineNumbers(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["epcList_detailed"] = []EPCRef{
		{Value: "urn:epc:id:sgtin:0614141.107346.2017", LineNumber: 9},
		{Value: "urn:epc:id:sgtin:9999999.107346.2018", LineNumber: 10},
	}

	errs := v.ValidateEvent(event, testCompanies)
	require.Len(t, errs, 1)
	assert.Equal(t, 10, errs[0].LineNumber)
	assert.Contains(t, errs[0].Message, "Unauthorized company prefix")
}

func TestValidateEventVocabulary(t *testing.T) {
	v := NewEventValidator()

	event := validObjectEvent()
	event["bizStep"] = "urn:epcglobal:cbv:bizstep:teleporting"
	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Invalid business step: teleporting")

	event = validObjectEvent()
	event["disposition"] = "urn:epcglobal:cbv:disp:vaporized"
	errs = v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Invalid disposition: vaporized")
}

func TestValidateEventAcceptsEveryVocabularyBizStep(t *testing.T) {
	v := NewEventValidator()

	for step := range validBizSteps {
		event := validObjectEvent()
		event["bizStep"] = "urn:epcglobal:cbv:bizstep:" + step
		errs := v.ValidateEvent(event, testCompanies)
		assert.NotContains(t, errorMessages(errs), "Invalid business step: "+step)
	}
}

func TestValidateEventAcceptsEveryVocabularyDisposition(t *testing.T) {
	v := NewEventValidator()

	for disp := range validDispositions {
		event := validObjectEvent()
		event["disposition"] = "urn:epcglobal:cbv:disp:" + disp
		errs := v.ValidateEvent(event, testCompanies)
		assert.NotContains(t, errorMessages(errs), "Invalid disposition: "+disp)
	}
}

func TestValidateEventLocationIdentifiers(t *testing.T) {
	v := NewEventValidator()

	event := validObjectEvent()
	event["readPoint"] = map[string]interface{}{"id": "urn:epc:id:sgln:0614141.00777.0"}
	event["bizLocation"] = map[string]interface{}{"id": "urn:epc:id:sgln:0614141.00888.0"}
	assert.Empty(t, v.ValidateEvent(event, testCompanies))

	event = validObjectEvent()
	event["readPoint"] = "urn:epc:id:sgln:0614141.00777.0"
	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Invalid readPoint format: must be object with 'id' field")

	event = validObjectEvent()
	event["bizLocation"] = map[string]interface{}{"id": "https://example.com/loc/1"}
	errs = v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Invalid bizLocation identifier format: must be SGLN")
}

func TestValidateEventILMD(t *testing.T) {
	v := NewEventValidator()

	event := validObjectEvent()
	event["ilmd"] = map[string]interface{}{
		"lotNumber":          "LOT123",
		"itemExpirationDate": "2025-12-31",
	}
	assert.Empty(t, v.ValidateEvent(event, testCompanies))

	// Namespaced keys are accepted too
	event = validObjectEvent()
	event["ilmd"] = map[string]interface{}{
		"cbvmda:lotNumber":          "LOT123",
		"cbvmda:itemExpirationDate": "2025-12-31",
	}
	assert.Empty(t, v.ValidateEvent(event, testCompanies))

	event = validObjectEvent()
	event["ilmd"] = map[string]interface{}{"itemExpirationDate": "2025-12-31"}
	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs), "Missing required ILMD field: lotNumber")

	event = validObjectEvent()
	event["ilmd"] = map[string]interface{}{
		"lotNumber":          123,
		"itemExpirationDate": "12/31/2025",
	}
	errs = v.ValidateEvent(event, testCompanies)
	messages := errorMessages(errs)
	assert.Contains(t, messages, "Invalid type for ILMD field lotNumber")
	assert.Contains(t, messages, "Invalid date format in ILMD field itemExpirationDate: 12/31/2025")
}

func TestValidateEventILMDOnlyCheckedForCommissioning(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["bizStep"] = "urn:epcglobal:cbv:bizstep:storing"
	event["disposition"] = "urn:epcglobal:cbv:disp:active"
	event["ilmd"] = map[string]interface{}{}
	assert.Empty(t, v.ValidateEvent(event, testCompanies))
}

func TestValidateEventAggregationParentID(t *testing.T) {
	v := NewEventValidator()
	event := map[string]interface{}{
		"eventType":           "AggregationEvent",
		"eventTime":           "2024-01-15T11:00:00Z",
		"eventTimeZoneOffset": "+00:00",
		"childEPCs":           []string{"urn:epc:id:sgtin:0614141.107346.2017"},
		"action":              "ADD",
	}

	errs := v.ValidateEvent(event, testCompanies)
	messages := errorMessages(errs)
	assert.Contains(t, messages, "parentID required for ADD AggregationEvent")
	assert.Contains(t, messages, "parentID required for ADD AggregationEvent with children")

	event["parentID"] = "urn:epc:id:sscc:0614141.1234567890"
	assert.Empty(t, v.ValidateEvent(event, testCompanies))

	// DELETE never requires a parent
	delete(event, "parentID")
	event["action"] = "DELETE"
	assert.Empty(t, v.ValidateEvent(event, testCompanies))
}

func TestValidateEventShipping(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["bizStep"] = "urn:epcglobal:cbv:bizstep:shipping"
	event["disposition"] = "urn:epcglobal:cbv:disp:in_transit"
	event["bizTransactionList"] = []map[string]interface{}{
		{"type": "urn:epcglobal:cbv:btt:po", "bizTransaction": "urn:epcglobal:cbv:bt:0614141073467:1234"},
	}
	event["extension"] = map[string]interface{}{
		"sourceList": []map[string]interface{}{
			{"type": "urn:epcglobal:cbv:sdt:owning_party", "source": "urn:epc:id:sgln:0614141.00001.0"},
		},
		"destinationList": []map[string]interface{}{
			{"type": "urn:epcglobal:cbv:sdt:owning_party", "destination": "urn:epc:id:sgln:0614141.00002.0"},
			{"type": "urn:epcglobal:cbv:sdt:location", "destination": "urn:epc:id:sgln:0614141.00003.0"},
		},
	}

	errs := v.ValidateEvent(event, testCompanies)
	messages := errorMessages(errs)
	assert.Contains(t, messages, "Missing required transaction type in shipping event: urn:epcglobal:cbv:btt:desadv")
	assert.Contains(t, messages, "Missing required sourceList type: location")
	assert.NotContains(t, messages, "Missing required destinationList type: location")
	assert.Len(t, errs, 2)
}

func TestValidateEventShippingComplete(t *testing.T) {
	v := NewEventValidator()
	event := validObjectEvent()
	event["bizStep"] = "urn:epcglobal:cbv:bizstep:shipping"
	event["disposition"] = "urn:epcglobal:cbv:disp:in_transit"
	event["bizTransactionList"] = []map[string]interface{}{
		{"type": "urn:epcglobal:cbv:btt:po", "bizTransaction": "urn:epcglobal:cbv:bt:0614141073467:1234"},
		{"type": "urn:epcglobal:cbv:btt:desadv", "bizTransaction": "urn:epcglobal:cbv:bt:0614141073467:5678"},
	}
	event["extension"] = map[string]interface{}{
		"sourceList": []map[string]interface{}{
			{"type": "urn:epcglobal:cbv:sdt:owning_party", "source": "urn:epc:id:sgln:0614141.00001.0"},
			{"type": "urn:epcglobal:cbv:sdt:location", "source": "urn:epc:id:sgln:0614141.00001.0"},
		},
		"destinationList": []map[string]interface{}{
			{"type": "urn:epcglobal:cbv:sdt:owning_party", "destination": "urn:epc:id:sgln:0614141.00002.0"},
			{"type": "urn:epcglobal:cbv:sdt:location", "destination": "urn:epc:id:sgln:0614141.00002.0"},
		},
	}

	assert.Empty(t, v.ValidateEvent(event, testCompanies))
}

func TestValidateEventRecordTime(t *testing.T) {
	v := NewEventValidator()

	event := validObjectEvent()
	event["recordTime"] = "2024-01-15T12:00:00Z"
	errs := v.ValidateEvent(event, testCompanies)
	assert.Contains(t, errorMessages(errs),
		"recordTime 2024-01-15T12:00:00Z is later than eventTime 2024-01-15T10:30:47Z")

	event = validObjectEvent()
	event["recordTime"] = "2024-01-15T10:30:47Z"
	assert.Empty(t, v.ValidateEvent(event, testCompanies))
}
