package footprint

// Distance holds the distance measurements of a transport leg in km.
type Distance struct {
	Actual *float64 `json:"actual,omitempty"`
	GCD    *float64 `json:"gcd,omitempty"`
	SFD    *float64 `json:"sfd,omitempty"`
}

// TCE is one transport chain element. Once appended to a chain it is never
// modified.
type TCE struct {
	TceID      string   `json:"tceId" validate:"required"`
	PrevTceIDs []string `json:"prevTceIds"`
	HocID      string   `json:"hocId,omitempty"`
	TocID      string   `json:"tocId,omitempty"`
	ShipmentID string   `json:"shipmentId" validate:"required"`
	Mass       float64  `json:"mass" validate:"gte=0"`

	Co2eWTW           *float64  `json:"co2eWTW,omitempty"`
	Co2eTTW           *float64  `json:"co2eTTW,omitempty"`
	NoxTTW            *float64  `json:"noxTTW,omitempty"`
	SoxTTW            *float64  `json:"soxTTW,omitempty"`
	Ch4TTW            *float64  `json:"ch4TTW,omitempty"`
	PmTTW             *float64  `json:"pmTTW,omitempty"`
	TransportActivity *float64  `json:"transportActivity,omitempty"`
	Distance          *Distance `json:"distance,omitempty"`
}

// ExtensionData is the payload of the shipment extension block.
type ExtensionData struct {
	Mass       float64 `json:"mass" validate:"gt=0"`
	ShipmentID string  `json:"shipmentId" validate:"required"`
	Tces       []TCE   `json:"tces" validate:"dive"`
}

// Extension is one data-model extension attached to a footprint.
type Extension struct {
	SpecVersion string        `json:"specVersion" validate:"required"`
	DataSchema  string        `json:"dataSchema" validate:"required"`
	Data        ExtensionData `json:"data"`
}

// ProductFootprint is the shipment-level footprint document.
type ProductFootprint struct {
	ID                 string      `json:"id" validate:"required"`
	SpecVersion        string      `json:"specVersion" validate:"required"`
	Version            int         `json:"version" validate:"gte=0"`
	Created            string      `json:"created" validate:"required"`
	Status             string      `json:"status" validate:"required"`
	CompanyName        string      `json:"companyName" validate:"required"`
	CompanyIDs         []string    `json:"companyIds" validate:"min=1"`
	ProductDescription string      `json:"productDescription"`
	ProductIDs         []string    `json:"productIds" validate:"min=1"`
	ProductCategoryCpc int         `json:"productCategoryCpc"`
	ProductNameCompany string      `json:"productNameCompany"`
	Pcf                *float64    `json:"pcf,omitempty"`
	Comment            string      `json:"comment"`
	Extensions         []Extension `json:"extensions" validate:"min=1,dive"`
}

// Chain returns the chain of the extension carrying shipmentID.
func (pf *ProductFootprint) Chain(shipmentID string) ([]TCE, bool) {
	idx := pf.extensionIndex(shipmentID)
	if idx < 0 {
		return nil, false
	}
	return pf.Extensions[idx].Data.Tces, true
}

// PrimaryShipment returns the shipment data of the first extension block.
func (pf *ProductFootprint) PrimaryShipment() (ExtensionData, bool) {
	if pf == nil || len(pf.Extensions) == 0 {
		return ExtensionData{}, false
	}
	return pf.Extensions[0].Data, true
}

func (pf *ProductFootprint) extensionIndex(shipmentID string) int {
	if pf == nil {
		return -1
	}
	for i := range pf.Extensions {
		if pf.Extensions[i].Data.ShipmentID == shipmentID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the document.
func (pf *ProductFootprint) Clone() *ProductFootprint {
	if pf == nil {
		return nil
	}
	cp := *pf
	cp.CompanyIDs = append([]string(nil), pf.CompanyIDs...)
	cp.ProductIDs = append([]string(nil), pf.ProductIDs...)
	cp.Pcf = clonePtr(pf.Pcf)
	cp.Extensions = make([]Extension, len(pf.Extensions))
	for i, ext := range pf.Extensions {
		cp.Extensions[i] = ext
		tces := make([]TCE, len(ext.Data.Tces))
		for j, tce := range ext.Data.Tces {
			tces[j] = tce.clone()
		}
		cp.Extensions[i].Data.Tces = tces
	}
	return &cp
}

func (t TCE) clone() TCE {
	cp := t
	cp.PrevTceIDs = append([]string{}, t.PrevTceIDs...)
	cp.Co2eWTW = clonePtr(t.Co2eWTW)
	cp.Co2eTTW = clonePtr(t.Co2eTTW)
	cp.NoxTTW = clonePtr(t.NoxTTW)
	cp.SoxTTW = clonePtr(t.SoxTTW)
	cp.Ch4TTW = clonePtr(t.Ch4TTW)
	cp.PmTTW = clonePtr(t.PmTTW)
	cp.TransportActivity = clonePtr(t.TransportActivity)
	if t.Distance != nil {
		d := Distance{
			Actual: clonePtr(t.Distance.Actual),
			GCD:    clonePtr(t.Distance.GCD),
			SFD:    clonePtr(t.Distance.SFD),
		}
		cp.Distance = &d
	}
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
