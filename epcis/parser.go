package epcis

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/types"
)

var xmlnsPattern = regexp.MustCompile(`xmlns(?::\w+)?=["']([^"']+)["']`)

// ParseDocument parses an EPCIS document and extracts the header, the
// events, and the set of company prefixes seen across all EPC lists.
// Parse problems are returned as validation errors, not Go errors; a
// malformed document yields a single format error and no events.
func ParseDocument(content []byte, isXML bool) (map[string]interface{}, []map[string]interface{}, map[string]bool, []types.ValidationError) {
	var (
		header    map[string]interface{}
		events    []map[string]interface{}
		companies = map[string]bool{}
		errs      []types.ValidationError
	)

	if isXML {
		header, events, errs = parseXML(content, companies)
	} else {
		header, events, errs = parseJSON(content, companies)
	}

	// Promote the SBDH instance identifier when present
	if header != nil {
		docID := getMap(header, "DocumentIdentification")
		if instanceID := getString(docID, "InstanceIdentifier"); instanceID != "" {
			header["instance_identifier"] = instanceID
			logger.Info("Found instance identifier", zap.String("instance_identifier", instanceID))
		}
	}

	return header, events, companies, errs
}

func parseXML(content []byte, companies map[string]bool) (map[string]interface{}, []map[string]interface{}, []types.ValidationError) {
	var errs []types.ValidationError
	events := []map[string]interface{}{}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(content); err != nil {
		addError(&errs, types.ErrTypeFormat, types.SeverityError, fmt.Sprintf("Invalid XML format: %v", err))
		return nil, events, errs
	}

	root := doc.Root()
	if root == nil {
		addError(&errs, types.ErrTypeFormat, types.SeverityError, "Invalid XML format: document has no root element")
		return nil, events, errs
	}

	// At least one declared namespace must mention EPCIS
	hasEPCISNamespace := false
	for _, match := range xmlnsPattern.FindAllStringSubmatch(string(content), -1) {
		if strings.Contains(strings.ToLower(match[1]), "epcis") {
			hasEPCISNamespace = true
			break
		}
	}
	if !hasEPCISNamespace {
		addError(&errs, types.ErrTypeStructure, types.SeverityError, "Missing EPCIS namespace declaration")
	}

	var header map[string]interface{}
	if headerElem := findByLocalName(root, "StandardBusinessDocumentHeader"); headerElem != nil {
		if m, ok := xmlToMap(headerElem).(map[string]interface{}); ok {
			header = m
		}
	}

	eventElems := collectEventElements(root)
	positions := scanEventPositions(content, len(eventElems))

	for i, elem := range eventElems {
		event, ok := xmlToMap(elem).(map[string]interface{})
		if !ok {
			addError(&errs, types.ErrTypeFormat, types.SeverityError,
				fmt.Sprintf("Error parsing event: %s element has no content", elem.Tag))
			continue
		}
		event["eventType"] = elem.Tag

		var pos eventPosition
		if i < len(positions) {
			pos = positions[i]
			event["_line_number"] = pos.Line
		}

		// Per-EPC line numbers for the two EPC-bearing lists
		if epcs := getStringList(event, "epcList"); event["epcList"] != nil {
			event["epcList_detailed"] = detailEPCs(epcs, pos.EPCLines, companies)
		}
		if childEPCs := getStringList(event, "childEPCs"); event["childEPCs"] != nil {
			event["childEPCs_detailed"] = detailEPCs(childEPCs, pos.ChildLines, companies)
		}

		events = append(events, event)
	}

	return header, events, errs
}

// detailEPCs zips EPC values with the line numbers the token scan recorded,
// accumulating company prefixes along the way.
func detailEPCs(epcs []string, lines []int, companies map[string]bool) []EPCRef {
	refs := make([]EPCRef, 0, len(epcs))
	for i, epc := range epcs {
		line := 0
		if i < len(lines) {
			line = lines[i]
		}
		refs = append(refs, EPCRef{Value: epc, LineNumber: line})
		addCompanyPrefix(companies, epc)
	}
	return refs
}

func parseJSON(content []byte, companies map[string]bool) (map[string]interface{}, []map[string]interface{}, []types.ValidationError) {
	var errs []types.ValidationError
	events := []map[string]interface{}{}

	var data map[string]interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		addError(&errs, types.ErrTypeFormat, types.SeverityError, fmt.Sprintf("Invalid JSON format: %v", err))
		return nil, events, errs
	}

	// The @context list must reference EPCIS
	hasEPCISContext := false
	if ctxList, ok := data["@context"].([]interface{}); ok {
		for _, ctx := range ctxList {
			if strings.Contains(strings.ToLower(fmt.Sprint(ctx)), "epcis") {
				hasEPCISContext = true
				break
			}
		}
	}
	if !hasEPCISContext {
		addError(&errs, types.ErrTypeStructure, types.SeverityError, "Missing EPCIS context in JSON")
	}

	header := getMap(data, "header")

	eventList, _ := data["eventList"].([]interface{})
	for _, item := range eventList {
		event, ok := item.(map[string]interface{})
		if !ok {
			addError(&errs, types.ErrTypeFormat, types.SeverityError,
				fmt.Sprintf("Error parsing event: expected object, got %T", item))
			continue
		}
		events = append(events, event)

		for _, epc := range append(getStringList(event, "epcList"), getStringList(event, "childEPCs")...) {
			addCompanyPrefix(companies, epc)
		}
	}

	return header, events, errs
}

// AuthorizedCompanies extracts the GS1 company prefixes named by the SBDH
// Sender and Receiver identifiers. Only all-digit trailing segments count;
// an empty result means the header names no parties.
func AuthorizedCompanies(header map[string]interface{}) map[string]bool {
	companies := map[string]bool{}
	for _, party := range []string{"Sender", "Receiver"} {
		text := identifierText(getMap(header, party)["Identifier"])
		if text == "" {
			continue
		}
		parts := strings.Split(text, ":")
		prefix := parts[len(parts)-1]
		if prefix != "" && isAllDigits(prefix) {
			companies[prefix] = true
		}
	}
	return companies
}

// identifierText unwraps an Identifier value, which parses as a plain
// string when the element has no attributes and as {"value": ...} when it
// carries an Authority attribute.
func identifierText(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]interface{}:
		return getString(v, "value")
	}
	return ""
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// addCompanyPrefix records the leftmost dot segment of an EPC's fifth
// colon field.
func addCompanyPrefix(companies map[string]bool, epc string) {
	parts := strings.Split(epc, ":")
	if len(parts) < 5 {
		return
	}
	prefix := strings.SplitN(parts[4], ".", 2)[0]
	if prefix != "" {
		companies[prefix] = true
	}
}

// findByLocalName returns the first descendant (or the element itself)
// whose local tag name matches, in document order.
func findByLocalName(el *etree.Element, name string) *etree.Element {
	if el.Tag == name {
		return el
	}
	for _, child := range el.ChildElements() {
		if found := findByLocalName(child, name); found != nil {
			return found
		}
	}
	return nil
}

// findAllByLocalName returns all descendants with the local tag name, in
// document order.
func findAllByLocalName(el *etree.Element, name string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == name {
			out = append(out, child)
		}
		out = append(out, findAllByLocalName(child, name)...)
	}
	return out
}

// collectEventElements gathers ObjectEvent and AggregationEvent elements in
// source order.
func collectEventElements(root *etree.Element) []*etree.Element {
	var out []*etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag == "ObjectEvent" || child.Tag == "AggregationEvent" {
			out = append(out, child)
		}
		out = append(out, collectEventElements(child)...)
	}
	return out
}

// eventPosition records the source lines the token scan observed for one
// event element and its EPC lists.
type eventPosition struct {
	Line       int
	EPCLines   []int
	ChildLines []int
}

// scanEventPositions walks the raw bytes with a token decoder to recover
// line numbers, which the DOM library does not expose. The events come back
// in document order, matching collectEventElements.
func scanEventPositions(content []byte, expected int) []eventPosition {
	positions := make([]eventPosition, 0, expected)

	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.Strict = false

	var current *eventPosition
	depth := 0      // nesting depth inside the current event element
	listMode := ""  // "epcList" or "childEPCs" while inside one

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// The DOM parse already succeeded; fall back to whatever
			// positions were recovered before the decoder gave up.
			logger.Warn("Line scan stopped early", zap.Error(err))
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := decoder.InputPos()
			name := t.Name.Local
			if current == nil {
				if name == "ObjectEvent" || name == "AggregationEvent" {
					positions = append(positions, eventPosition{Line: line})
					current = &positions[len(positions)-1]
					depth = 0
				}
				continue
			}
			depth++
			switch {
			case name == "epcList" || name == "childEPCs":
				listMode = name
			case name == "epc" && listMode == "epcList":
				current.EPCLines = append(current.EPCLines, line)
			case name == "epc" && listMode == "childEPCs":
				current.ChildLines = append(current.ChildLines, line)
			}
		case xml.EndElement:
			if current == nil {
				continue
			}
			if t.Name.Local == listMode {
				listMode = ""
			}
			if depth == 0 {
				current = nil
				continue
			}
			depth--
		}
	}

	return positions
}

// xmlToMap converts an element subtree into the generic event mapping.
// Attributes become keys; the known list-valued tags become ordered
// sequences; an element with only text collapses to its string value.
func xmlToMap(el *etree.Element) interface{} {
	result := map[string]interface{}{}

	for _, attr := range el.Attr {
		if attr.Space == "xmlns" || attr.Key == "xmlns" {
			continue
		}
		result[attr.Key] = attr.Value
	}

	for _, child := range el.ChildElements() {
		tag := child.Tag

		switch tag {
		case "epcList", "childEPCs":
			list, _ := result[tag].([]string)
			for _, epcEl := range findAllByLocalName(child, "epc") {
				if text := strings.TrimSpace(epcEl.Text()); text != "" {
					list = append(list, text)
				}
			}
			result[tag] = list

		case "bizTransactionList":
			list, _ := result[tag].([]map[string]interface{})
			for _, txn := range findAllByLocalName(child, "bizTransaction") {
				text := strings.TrimSpace(txn.Text())
				if text == "" {
					continue
				}
				list = append(list, map[string]interface{}{
					"type":           txn.SelectAttrValue("type", ""),
					"bizTransaction": text,
				})
			}
			result[tag] = list

		case "readPoint", "bizLocation":
			if idEl := findByLocalNameIn(child, "id"); idEl != nil {
				if text := strings.TrimSpace(idEl.Text()); text != "" {
					result[tag] = map[string]interface{}{"id": text}
				}
			}

		case "extension":
			ext, _ := result[tag].(map[string]interface{})
			if ext == nil {
				ext = map[string]interface{}{}
			}
			if srcList := findByLocalNameIn(child, "sourceList"); srcList != nil {
				ext["sourceList"] = partyList(srcList, "source")
			}
			if destList := findByLocalNameIn(child, "destinationList"); destList != nil {
				ext["destinationList"] = partyList(destList, "destination")
			}
			result[tag] = ext

		default:
			childData := xmlToMap(child)
			if existing, ok := result[tag]; ok {
				if list, isList := existing.([]interface{}); isList {
					result[tag] = append(list, childData)
				} else {
					result[tag] = []interface{}{existing, childData}
				}
			} else {
				result[tag] = childData
			}
		}
	}

	if text := strings.TrimSpace(el.Text()); text != "" {
		if len(result) == 0 {
			return text
		}
		result["value"] = text
	}

	return result
}

// findByLocalNameIn searches descendants only (not the element itself).
func findByLocalNameIn(el *etree.Element, name string) *etree.Element {
	for _, child := range el.ChildElements() {
		if found := findByLocalName(child, name); found != nil {
			return found
		}
	}
	return nil
}

// partyList converts a sourceList/destinationList element into the list of
// {type, source|destination} entries the shipping checks consume.
func partyList(listEl *etree.Element, valueKey string) []map[string]interface{} {
	entries := []map[string]interface{}{}
	for _, party := range findAllByLocalName(listEl, valueKey) {
		text := strings.TrimSpace(party.Text())
		if text == "" {
			continue
		}
		entries = append(entries, map[string]interface{}{
			"type":   party.SelectAttrValue("type", ""),
			valueKey: text,
		})
	}
	return entries
}
