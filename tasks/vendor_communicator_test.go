package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/types"
)

func sampleFindings() []types.StoredError {
	return []types.StoredError{
		{ErrorType: types.ErrTypeSequence, Severity: types.SeverityError, Message: "Out of order event for urn:epc:id:sgtin:0614141.107346.2017: packing after shipping"},
		{ErrorType: types.ErrTypeField, Severity: types.SeverityError, Message: "Missing required field: bizStep"},
		{ErrorType: types.ErrTypeSequence, Severity: types.SeverityWarning, Message: "Incomplete sequence for urn:epc:id:sgtin:0614141.107346.2018: ends with shipping"},
	}
}

func TestRecommendActions(t *testing.T) {
	actions := recommendActions(sampleFindings())
	// Two sequence findings collapse into one action
	require.Len(t, actions, 2)
	assert.Equal(t, "Review and correct event sequence according to DSCSA requirements", actions[0])
	assert.Equal(t, "Add missing required fields to EPCIS events", actions[1])

	fallback := recommendActions([]types.StoredError{{ErrorType: types.ErrTypeSystem}})
	require.Len(t, fallback, 1)
	assert.Equal(t, "Review and correct validation errors in EPCIS file", fallback[0])
}

func TestPlanPriority(t *testing.T) {
	assert.Equal(t, "low", planPriority(0))
	assert.Equal(t, "normal", planPriority(1))
	assert.Equal(t, "normal", planPriority(4))
	assert.Equal(t, "high", planPriority(5))
	assert.Equal(t, "high", planPriority(9))
	assert.Equal(t, "urgent", planPriority(10))
}

func TestPlanDueDate(t *testing.T) {
	critical := func(n int) []types.StoredError {
		findings := make([]types.StoredError, n)
		for i := range findings {
			findings[i] = types.StoredError{Severity: types.SeverityError}
		}
		return findings
	}

	daysUntil := func(due time.Time) int {
		return int(time.Until(due).Round(24*time.Hour) / (24 * time.Hour))
	}

	assert.Equal(t, 5, daysUntil(planDueDate(nil)))
	assert.Equal(t, 5, daysUntil(planDueDate(critical(4))))
	assert.Equal(t, 3, daysUntil(planDueDate(critical(5))))
	assert.Equal(t, 2, daysUntil(planDueDate(critical(10))))
}

func TestSubject(t *testing.T) {
	plan := &types.ActionPlan{PONumber: "ABC-12345", Priority: "normal"}
	assert.Equal(t, "Action Required: EPCIS File Correction - PO #ABC-12345", Subject(plan))

	plan.Priority = "urgent"
	assert.Equal(t, "URGENT - Action Required: EPCIS File Correction - PO #ABC-12345", Subject(plan))

	assert.Equal(t, "Action Required: EPCIS File Correction - PO #UNKNOWN",
		Subject(&types.ActionPlan{Priority: "normal"}))
}

func TestBuildActionPlan(t *testing.T) {
	vc := NewVendorCommunicator(&configs.Config{})

	extracted := &types.ExtractedData{
		PONumbers:  []string{"ABC-12345", "XYZ-9876"},
		LotNumbers: []string{"L123456"},
	}
	supplier := &types.Supplier{
		Name:         "Acme Pharma",
		ContactEmail: "compliance@acme.example",
	}

	plan := vc.BuildActionPlan(extracted, supplier, sampleFindings())

	assert.Equal(t, "ABC-12345", plan.PONumber)
	assert.Equal(t, "L123456", plan.LotNumber)
	assert.Equal(t, "compliance@acme.example", plan.VendorEmail)
	assert.Equal(t, "Acme Pharma", plan.VendorName)
	assert.Equal(t, "normal", plan.Priority)
	assert.Len(t, plan.Recommendations, 2)
}

func TestBuildActionPlanPrefersExtractedVendorName(t *testing.T) {
	vc := NewVendorCommunicator(&configs.Config{})

	plan := vc.BuildActionPlan(
		&types.ExtractedData{VendorName: "MedDist Wholesale"},
		&types.Supplier{Name: "Acme Pharma", ContactEmail: "compliance@acme.example"},
		nil)

	assert.Equal(t, "MedDist Wholesale", plan.VendorName)
	assert.Equal(t, "low", plan.Priority)
}

func TestComposeEmailTemplateFallback(t *testing.T) {
	// No API key configured, so the static template is used
	vc := NewVendorCommunicator(&configs.Config{})

	plan := vc.BuildActionPlan(
		&types.ExtractedData{PONumbers: []string{"ABC-12345"}, LotNumbers: []string{"L123456"}, VendorName: "Acme Pharma"},
		&types.Supplier{ContactEmail: "compliance@acme.example"},
		sampleFindings())

	email, err := vc.ComposeEmail(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, "compliance@acme.example", email.VendorEmail)
	assert.Equal(t, "Action Required: EPCIS File Correction - PO #ABC-12345", email.Subject)
	assert.Equal(t, "normal", email.Priority)

	assert.Contains(t, email.Body, "Dear Acme Pharma,")
	assert.Contains(t, email.Body, "Purchase Order: ABC-12345")
	assert.Contains(t, email.Body, "Lot Number: L123456")
	assert.Contains(t, email.Body, "[error] Missing required field: bizStep")
	assert.Contains(t, email.Body, "1. Review and correct event sequence according to DSCSA requirements")
	assert.Contains(t, email.Body, "2. Add missing required fields to EPCIS events")
}
