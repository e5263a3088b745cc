package epcis

// validBizSteps holds the CBV (Core Business Vocabulary) business steps.
var validBizSteps = map[string]bool{
	"accepting": true, "arriving": true, "collecting": true, "commissioning": true,
	"consigning": true, "creating_class_instance": true, "cycle_counting": true,
	"decommissioning": true, "departing": true, "destroying": true, "dispensing": true,
	"encoding": true, "entering_exiting": true, "holding": true, "inspecting": true,
	"installing": true, "killing": true, "loading": true, "other": true,
	"packing": true, "picking": true, "receiving": true, "removing": true,
	"repackaging": true, "repairing": true, "replacing": true, "reserving": true,
	"retail_selling": true, "shipping": true, "staging_outbound": true,
	"stock_taking": true, "stocking": true, "storing": true, "transporting": true,
	"unloading": true, "void_shipping": true,
}

// validDispositions holds the CBV dispositions.
var validDispositions = map[string]bool{
	"active": true, "container_closed": true, "damaged": true, "destroyed": true,
	"dispensed": true, "disposed": true, "encoded": true, "expired": true,
	"in_progress": true, "in_transit": true, "inactive": true,
	"no_pedigree_match": true, "non_sellable_other": true, "partially_dispensed": true,
	"recalled": true, "reserved": true, "retail_sold": true, "returned": true,
	"sellable_accessible": true, "sellable_not_accessible": true, "stolen": true,
	"unknown": true, "available": true, "unavailable": true,
}

// requiredFields lists the mandatory event fields per event type.
// parentID on AggregationEvent is conditional on action=ADD and is checked
// separately.
var requiredFields = map[string][]string{
	"ObjectEvent":         {"eventTime", "eventTimeZoneOffset", "epcList", "action"},
	"AggregationEvent":    {"eventTime", "eventTimeZoneOffset", "childEPCs", "action"},
	"TransactionEvent":    {"eventTime", "eventTimeZoneOffset", "bizTransactionList", "epcList", "action"},
	"TransformationEvent": {"eventTime", "eventTimeZoneOffset", "inputEPCList", "outputEPCList"},
}

// requiredShippingListTypes lists the party types a shipping event must name
// in each of its extension source/destination lists.
var requiredShippingListTypes = []string{"owning_party", "location"}

// shippingListKeys fixes the order the source and destination lists are
// checked in, so reports are stable.
var shippingListKeys = []string{"sourceList", "destinationList"}

// requiredShippingTransactionTypes lists the business transaction types a
// shipping event must carry.
var requiredShippingTransactionTypes = []string{
	"urn:epcglobal:cbv:btt:po",
	"urn:epcglobal:cbv:btt:desadv",
}

// eventSequence is the complete DSCSA chain-of-custody step ordering.
var eventSequence = []string{
	"commissioning",   // initial product serialization
	"packing",         // aggregation into cases/pallets
	"shipping",        // product leaving facility
	"receiving",       // product arrival at destination
	"storing",         // warehouse storage
	"dispensing",      // final dispensing to patient
	"decommissioning", // product state change (destroyed/damaged)
	"returns",         // product returns processing
}

// terminalSteps are the steps that legitimately close an EPC's sequence.
var terminalSteps = map[string]bool{
	"dispensing":      true,
	"decommissioning": true,
	"returns":         true,
}

// sequenceRule defines the DSCSA predecessor and disposition constraints
// for one business step.
type sequenceRule struct {
	Predecessors        []string
	AllowedDispositions []string
}

// sequenceRules encodes the DSCSA chain-of-custody rules per step.
var sequenceRules = map[string]sequenceRule{
	"commissioning": {
		Predecessors:        nil,
		AllowedDispositions: []string{"active", "in_progress"},
	},
	"packing": {
		Predecessors:        []string{"commissioning"},
		AllowedDispositions: []string{"in_progress", "active"},
	},
	"shipping": {
		Predecessors:        []string{"commissioning", "packing"},
		AllowedDispositions: []string{"in_transit"},
	},
	"receiving": {
		Predecessors:        []string{"shipping"},
		AllowedDispositions: []string{"in_progress", "active"},
	},
	"storing": {
		Predecessors:        []string{"receiving", "commissioning"},
		AllowedDispositions: []string{"active", "sellable_accessible"},
	},
	"dispensing": {
		Predecessors:        []string{"receiving", "storing"},
		AllowedDispositions: []string{"dispensed", "partially_dispensed"},
	},
	"decommissioning": {
		Predecessors:        []string{"receiving", "storing"},
		AllowedDispositions: []string{"destroyed", "expired", "recalled"},
	},
	"returns": {
		Predecessors:        []string{"dispensing", "storing"},
		AllowedDispositions: []string{"returned"},
	},
}

// stepOrdinal returns the DSCSA ordinal position of a step, or -1 for steps
// outside the chain.
func stepOrdinal(step string) int {
	for i, s := range eventSequence {
		if s == step {
			return i
		}
	}
	return -1
}
