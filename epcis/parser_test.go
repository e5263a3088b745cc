package epcis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<epcis:EPCISDocument xmlns:epcis="urn:epcglobal:epcis:xsd:1" schemaVersion="1.2">
  <EPCISHeader>
    <sbdh:StandardBusinessDocumentHeader xmlns:sbdh="http://www.unece.org/cefact/namespaces/StandardBusinessDocumentHeader">
      <sbdh:Sender>
        <sbdh:Identifier Authority="GS1">0614141</sbdh:Identifier>
      </sbdh:Sender>
      <sbdh:Receiver>
        <sbdh:Identifier Authority="GS1">0777777</sbdh:Identifier>
      </sbdh:Receiver>
      <sbdh:DocumentIdentification>
        <sbdh:InstanceIdentifier>EPCIS_DOC_001</sbdh:InstanceIdentifier>
      </sbdh:DocumentIdentification>
    </sbdh:StandardBusinessDocumentHeader>
  </EPCISHeader>
  <EPCISBody>
    <EventList>
      <ObjectEvent>
        <eventTime>2024-01-15T10:00:00Z</eventTime>
        <eventTimeZoneOffset>+00:00</eventTimeZoneOffset>
        <epcList>
          <epc>urn:epc:id:sgtin:0614141.107346.2017</epc>
          <epc>urn:epc:id:sgtin:0614141.107346.2018</epc>
        </epcList>
        <action>ADD</action>
        <bizStep>urn:epcglobal:cbv:bizstep:commissioning</bizStep>
        <disposition>urn:epcglobal:cbv:disp:active</disposition>
      </ObjectEvent>
      <AggregationEvent>
        <eventTime>2024-01-15T11:00:00Z</eventTime>
        <eventTimeZoneOffset>+00:00</eventTimeZoneOffset>
        <parentID>urn:epc:id:sscc:0614141.1234567890</parentID>
        <childEPCs>
          <epc>urn:epc:id:sgtin:0614141.107346.2017</epc>
        </childEPCs>
        <action>ADD</action>
        <bizStep>urn:epcglobal:cbv:bizstep:packing</bizStep>
      </AggregationEvent>
    </EventList>
  </EPCISBody>
</epcis:EPCISDocument>`

func TestParseXMLDocument(t *testing.T) {
	header, events, companies, errs := ParseDocument([]byte(sampleXML), true)
	require.Empty(t, errs)
	require.Len(t, events, 2)

	assert.Equal(t, "ObjectEvent", events[0]["eventType"])
	assert.Equal(t, "AggregationEvent", events[1]["eventType"])
	assert.Equal(t, "2024-01-15T10:00:00Z", events[0]["eventTime"])
	assert.Equal(t, "ADD", events[0]["action"])
	assert.Equal(t, []string{
		"urn:epc:id:sgtin:0614141.107346.2017",
		"urn:epc:id:sgtin:0614141.107346.2018",
	}, events[0]["epcList"])
	assert.Equal(t, "urn:epc:id:sscc:0614141.1234567890", events[1]["parentID"])
	assert.Equal(t, []string{"urn:epc:id:sgtin:0614141.107346.2017"}, events[1]["childEPCs"])

	assert.True(t, companies["0614141"])

	require.NotNil(t, header)
	assert.Equal(t, "EPCIS_DOC_001", header["instance_identifier"])
}

func TestParseXMLLineNumbers(t *testing.T) {
	_, events, _, errs := ParseDocument([]byte(sampleXML), true)
	require.Empty(t, errs)
	require.Len(t, events, 2)

	assert.Equal(t, 18, events[0]["_line_number"])

	refs, ok := events[0]["epcList_detailed"].([]EPCRef)
	require.True(t, ok)
	require.Len(t, refs, 2)
	assert.Equal(t, 22, refs[0].LineNumber)
	assert.Equal(t, 23, refs[1].LineNumber)
	assert.Equal(t, "urn:epc:id:sgtin:0614141.107346.2017", refs[0].Value)

	childRefs, ok := events[1]["childEPCs_detailed"].([]EPCRef)
	require.True(t, ok)
	require.Len(t, childRefs, 1)
	assert.Greater(t, childRefs[0].LineNumber, refs[1].LineNumber)
}

func TestParseXMLMissingNamespace(t *testing.T) {
	xml := `<?xml version="1.0"?>
<Document>
  <ObjectEvent>
    <eventTime>2024-01-15T10:00:00Z</eventTime>
  </ObjectEvent>
</Document>`

	_, events, _, errs := ParseDocument([]byte(xml), true)
	require.Len(t, errs, 1)
	assert.Equal(t, "Missing EPCIS namespace declaration", errs[0].Message)
	assert.Len(t, events, 1)
}

func TestParseXMLMalformed(t *testing.T) {
	_, events, _, errs := ParseDocument([]byte("<EPCISDocument><broken>"), true)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Invalid XML format:")
	assert.Empty(t, events)
}

func TestParseXMLShippingExtension(t *testing.T) {
	xml := `<?xml version="1.0"?>
<EPCISDocument xmlns="urn:epcglobal:epcis:xsd:1">
  <EPCISBody>
    <EventList>
      <ObjectEvent>
        <eventTime>2024-01-15T12:00:00Z</eventTime>
        <eventTimeZoneOffset>+00:00</eventTimeZoneOffset>
        <epcList>
          <epc>urn:epc:id:sgtin:0614141.107346.2017</epc>
        </epcList>
        <action>OBSERVE</action>
        <bizStep>urn:epcglobal:cbv:bizstep:shipping</bizStep>
        <bizTransactionList>
          <bizTransaction type="urn:epcglobal:cbv:btt:po">urn:epcglobal:cbv:bt:0614141073467:1234</bizTransaction>
        </bizTransactionList>
        <readPoint>
          <id>urn:epc:id:sgln:0614141.00777.0</id>
        </readPoint>
        <extension>
          <sourceList>
            <source type="urn:epcglobal:cbv:sdt:owning_party">urn:epc:id:sgln:0614141.00001.0</source>
          </sourceList>
          <destinationList>
            <destination type="urn:epcglobal:cbv:sdt:location">urn:epc:id:sgln:0614141.00002.0</destination>
          </destinationList>
        </extension>
      </ObjectEvent>
    </EventList>
  </EPCISBody>
</EPCISDocument>`

	_, events, _, errs := ParseDocument([]byte(xml), true)
	require.Empty(t, errs)
	require.Len(t, events, 1)
	event := events[0]

	txns, ok := event["bizTransactionList"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, txns, 1)
	assert.Equal(t, "urn:epcglobal:cbv:btt:po", txns[0]["type"])
	assert.Equal(t, "urn:epcglobal:cbv:bt:0614141073467:1234", txns[0]["bizTransaction"])

	readPoint, ok := event["readPoint"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "urn:epc:id:sgln:0614141.00777.0", readPoint["id"])

	extension, ok := event["extension"].(map[string]interface{})
	require.True(t, ok)
	sources, ok := extension["sourceList"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, sources, 1)
	assert.Equal(t, "urn:epcglobal:cbv:sdt:owning_party", sources[0]["type"])
	assert.Equal(t, "urn:epc:id:sgln:0614141.00001.0", sources[0]["source"])
	destinations, ok := extension["destinationList"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, destinations, 1)
}

func TestParseJSONDocument(t *testing.T) {
	doc := `{
  "@context": ["https://ref.gs1.org/standards/epcis/2.0.0/epcis-context.jsonld"],
  "header": {
    "DocumentIdentification": {"InstanceIdentifier": "EPCIS_DOC_002"}
  },
  "eventList": [
    {
      "eventType": "ObjectEvent",
      "eventTime": "2024-01-15T10:00:00Z",
      "eventTimeZoneOffset": "+00:00",
      "epcList": ["urn:epc:id:sgtin:0614141.107346.2017"],
      "action": "ADD",
      "bizStep": "urn:epcglobal:cbv:bizstep:commissioning"
    },
    {
      "eventType": "AggregationEvent",
      "eventTime": "2024-01-15T11:00:00Z",
      "eventTimeZoneOffset": "+00:00",
      "parentID": "urn:epc:id:sscc:0614141.1234567890",
      "childEPCs": ["urn:epc:id:sgtin:0614141.107346.2017"],
      "action": "ADD",
      "bizStep": "urn:epcglobal:cbv:bizstep:packing"
    }
  ]
}`

	header, events, companies, errs := ParseDocument([]byte(doc), false)
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.Equal(t, "ObjectEvent", events[0]["eventType"])
	assert.True(t, companies["0614141"])
	require.NotNil(t, header)
	assert.Equal(t, "EPCIS_DOC_002", header["instance_identifier"])
}

func TestParseJSONMissingContext(t *testing.T) {
	doc := `{"eventList": []}`

	_, _, _, errs := ParseDocument([]byte(doc), false)
	require.Len(t, errs, 1)
	assert.Equal(t, "Missing EPCIS context in JSON", errs[0].Message)
}

func TestParseJSONMalformed(t *testing.T) {
	_, events, _, errs := ParseDocument([]byte("{not json"), false)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Invalid JSON format:")
	assert.Empty(t, events)
}

func TestParseJSONNonObjectEvent(t *testing.T) {
	doc := `{
  "@context": ["https://ref.gs1.org/standards/epcis/2.0.0/epcis-context.jsonld"],
  "eventList": ["not-an-event"]
}`

	_, events, _, errs := ParseDocument([]byte(doc), false)
	require.Len(t, errs, 1)
	assert.Equal(t, "Error parsing event: expected object, got string", errs[0].Message)
	assert.Empty(t, events)
}

func TestAuthorizedCompanies(t *testing.T) {
	header, _, _, errs := ParseDocument([]byte(sampleXML), true)
	require.Empty(t, errs)

	authorized := AuthorizedCompanies(header)
	assert.True(t, authorized["0614141"])
	assert.True(t, authorized["0777777"])
	assert.Len(t, authorized, 2)

	assert.Empty(t, AuthorizedCompanies(nil))
	assert.Empty(t, AuthorizedCompanies(map[string]interface{}{
		"Sender": map[string]interface{}{"Identifier": "urn:epc:id:sgln:not-numeric"},
	}))
}
