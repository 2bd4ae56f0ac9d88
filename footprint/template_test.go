package footprint

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/stretchr/testify/require"
)

func TestCreateTemplateUsesHints(t *testing.T) {
	doc := newDoc(t)

	require.Equal(t, "Acme", doc.CompanyName)
	require.Equal(t, DefaultSpecVersion, doc.SpecVersion)
	require.Equal(t, "Active", doc.Status)
	require.Equal(t, 0, doc.Version)
	require.Len(t, doc.Extensions, 1)
	require.Equal(t, DefaultDataSchema, doc.Extensions[0].DataSchema)
	require.Equal(t, "SHIP_1", doc.Extensions[0].Data.ShipmentID)
	require.Equal(t, 1500.0, doc.Extensions[0].Data.Mass)
	require.Empty(t, doc.Extensions[0].Data.Tces)
	require.Equal(t, "Shipment with ID SHIP_1", doc.ProductNameCompany)
	require.Equal(t, "Logistics emissions related to shipment with ID SHIP_1", doc.ProductDescription)
	require.True(t, strings.HasPrefix(doc.CompanyIDs[0], "urn:epcidsgln:"))
	require.True(t, strings.HasPrefix(doc.ProductIDs[0], "urn:pathfinder:product:customcode:vendor-assigned:"))
	require.NoError(t, Validate(doc))
}

func TestCreateTemplateGeneratesMissingHints(t *testing.T) {
	doc, err := NewAssembler("", "").CreateTemplate("Acme", ShipmentInformation{})
	require.NoError(t, err)

	data := doc.Extensions[0].Data
	require.True(t, strings.HasPrefix(data.ShipmentID, "SHIP_"))
	require.GreaterOrEqual(t, data.Mass, 1000.0)
	require.LessOrEqual(t, data.Mass, 20000.0)
	require.GreaterOrEqual(t, doc.ProductCategoryCpc, 1000)
	require.LessOrEqual(t, doc.ProductCategoryCpc, 9999)
}

func TestTemplateSerializesEmptyChainAsArray(t *testing.T) {
	doc := newDoc(t)
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"tces":[]`)
}

func TestShipmentInformationValidation(t *testing.T) {
	negative := -1.0
	blank := "  "
	require.Error(t, ValidateShipmentInformation(ShipmentInformation{ShipmentWeight: &negative}))
	require.Error(t, ValidateShipmentInformation(ShipmentInformation{ShipmentID: &blank}))
	require.NoError(t, ValidateShipmentInformation(ShipmentInformation{}))

	_, err := NewAssembler("", "").CreateTemplate("Acme", ShipmentInformation{ShipmentWeight: &negative})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = NewAssembler("", "").CreateTemplate("", ShipmentInformation{})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateTemplateLeavesOriginalUntouched(t *testing.T) {
	doc := newDoc(t)
	name := "Globex"
	mass := 900.0
	updated := UpdateTemplate(doc, CustomData{CompanyName: &name, Mass: &mass})

	require.Equal(t, "Globex", updated.CompanyName)
	require.Equal(t, 900.0, updated.Extensions[0].Data.Mass)
	require.Equal(t, "Acme", doc.CompanyName)
	require.Equal(t, 1500.0, doc.Extensions[0].Data.Mass)
}

func TestValidateRejectsDocumentWithoutExtensions(t *testing.T) {
	doc := newDoc(t)
	doc.Extensions = nil
	require.Equal(t, apperr.KindValidation, apperr.KindOf(Validate(doc)))
	require.Error(t, Validate(nil))

	_, err := Summarize(doc)
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	doc := newDoc(t)
	b := NewChainBuilder(nil)
	_, err := b.AppendLink(doc, "SHIP_1", 1500, TransportOperator("200"), &Distance{Actual: Float(42.5)})
	require.NoError(t, err)
	_, err = b.AppendLink(doc, "SHIP_1", 1500, HubOperator("100"), nil)
	require.NoError(t, err)
	_, err = b.AppendLink(doc, "SHIP_1", 1500, TransportOperator("201"), &Distance{Actual: Float(7.5)})
	require.NoError(t, err)

	s, err := Summarize(doc)
	require.NoError(t, err)
	require.Equal(t, 3, s.TotalTces)
	require.Equal(t, 2, s.TransportOperations)
	require.Equal(t, 1, s.HubOperations)
	require.Len(t, s.TceIDs, 3)
	require.Equal(t, "SHIP_1", s.ShipmentID)
	require.Equal(t, 1500.0, s.TotalMass)
	require.InDelta(t, 50.0, s.TotalDistance, 1e-9)
}
