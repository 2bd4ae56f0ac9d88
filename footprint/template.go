package footprint

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/google/uuid"
)

const (
	DefaultSpecVersion = "2.0.0"
	DefaultDataSchema  = "https://api.ileap.sine.dev/shipment-footprint.json"
)

// ShipmentInformation carries optional hints for a new template.
type ShipmentInformation struct {
	ShipmentID     *string  `json:"shipment_id,omitempty"`
	ShipmentWeight *float64 `json:"shipment_weight,omitempty"`
}

// ValidateShipmentInformation rejects hints that are present but unusable.
func ValidateShipmentInformation(info ShipmentInformation) error {
	if info.ShipmentWeight != nil && *info.ShipmentWeight <= 0 {
		return apperr.Validation("INVALID_SHIPMENT_INFORMATION", "shipment_weight must be positive", nil).
			WithDetail("shipment_weight=%v", *info.ShipmentWeight)
	}
	if info.ShipmentID != nil && strings.TrimSpace(*info.ShipmentID) == "" {
		return apperr.Validation("INVALID_SHIPMENT_INFORMATION", "shipment_id must not be blank", nil)
	}
	return nil
}

// NewShipmentInformation generates a shipment id and a weight in kg drawn
// from [1000, 20000).
func NewShipmentInformation() ShipmentInformation {
	id := "SHIP_" + uuid.NewString()
	weight := 1000 + rand.Float64()*19000
	return ShipmentInformation{ShipmentID: &id, ShipmentWeight: &weight}
}

// Assembler creates footprint document templates.
type Assembler struct {
	specVersion string
	dataSchema  string
	now         func() time.Time
}

// NewAssembler returns an assembler. Empty arguments fall back to the defaults.
func NewAssembler(specVersion, dataSchema string) *Assembler {
	if specVersion == "" {
		specVersion = DefaultSpecVersion
	}
	if dataSchema == "" {
		dataSchema = DefaultDataSchema
	}
	return &Assembler{specVersion: specVersion, dataSchema: dataSchema, now: time.Now}
}

// CreateTemplate builds a fresh document with one extension block and an
// empty chain. Missing hints are generated.
func (a *Assembler) CreateTemplate(companyName string, info ShipmentInformation) (*ProductFootprint, error) {
	if strings.TrimSpace(companyName) == "" {
		return nil, apperr.Validation("COMPANY_NAME_MISSING", "company_name is required", nil)
	}
	if err := ValidateShipmentInformation(info); err != nil {
		return nil, err
	}

	generated := NewShipmentInformation()
	shipmentID := *generated.ShipmentID
	if info.ShipmentID != nil {
		shipmentID = *info.ShipmentID
	}
	weight := *generated.ShipmentWeight
	if info.ShipmentWeight != nil {
		weight = *info.ShipmentWeight
	}

	return &ProductFootprint{
		ID:                 uuid.NewString(),
		SpecVersion:        a.specVersion,
		Version:            0,
		Created:            a.now().UTC().Format(time.RFC3339Nano),
		Status:             "Active",
		CompanyName:        companyName,
		CompanyIDs:         []string{"urn:epcidsgln:" + uuid.NewString()},
		ProductDescription: fmt.Sprintf("Logistics emissions related to shipment with ID %s", shipmentID),
		ProductIDs:         []string{"urn:pathfinder:product:customcode:vendor-assigned:" + uuid.NewString()},
		ProductCategoryCpc: 1000 + rand.IntN(9000),
		ProductNameCompany: fmt.Sprintf("Shipment with ID %s", shipmentID),
		Extensions: []Extension{{
			SpecVersion: a.specVersion,
			DataSchema:  a.dataSchema,
			Data: ExtensionData{
				Mass:       weight,
				ShipmentID: shipmentID,
				Tces:       []TCE{},
			},
		}},
	}, nil
}

// CustomData overrides template fields. Nil fields are left alone.
type CustomData struct {
	CompanyName        *string  `json:"company_name,omitempty"`
	ProductDescription *string  `json:"product_description,omitempty"`
	ProductCategoryCpc *int     `json:"product_category_cpc,omitempty"`
	Mass               *float64 `json:"mass,omitempty"`
	ShipmentID         *string  `json:"shipment_id,omitempty"`
}

// UpdateTemplate returns a modified deep copy of template.
func UpdateTemplate(template *ProductFootprint, custom CustomData) *ProductFootprint {
	updated := template.Clone()
	if updated == nil {
		return nil
	}
	if custom.CompanyName != nil {
		updated.CompanyName = *custom.CompanyName
	}
	if custom.ProductDescription != nil {
		updated.ProductDescription = *custom.ProductDescription
	}
	if custom.ProductCategoryCpc != nil {
		updated.ProductCategoryCpc = *custom.ProductCategoryCpc
	}
	if len(updated.Extensions) > 0 {
		if custom.Mass != nil {
			updated.Extensions[0].Data.Mass = *custom.Mass
		}
		if custom.ShipmentID != nil {
			updated.Extensions[0].Data.ShipmentID = *custom.ShipmentID
		}
	}
	return updated
}
