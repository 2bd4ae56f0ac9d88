package footprint

import "github.com/ahmadzakiakmal/carbon-ledger/apperr"

// Summary is a compact overview of a document's primary chain.
type Summary struct {
	TotalTces           int      `json:"total_tces"`
	TransportOperations int      `json:"transport_operations"`
	HubOperations       int      `json:"hub_operations"`
	TceIDs              []string `json:"tce_ids"`
	ShipmentID          string   `json:"shipment_id"`
	TotalMass           float64  `json:"total_mass"`
	TotalDistance       float64  `json:"total_distance"`
}

// Summarize counts the links of the first extension's chain.
func Summarize(doc *ProductFootprint) (Summary, error) {
	data, ok := doc.PrimaryShipment()
	if !ok {
		return Summary{}, apperr.Validation("INVALID_FOOTPRINT", "Footprint has no extension block", nil)
	}

	s := Summary{
		TotalTces:  len(data.Tces),
		TceIDs:     make([]string, 0, len(data.Tces)),
		ShipmentID: data.ShipmentID,
		TotalMass:  data.Mass,
	}
	for _, tce := range data.Tces {
		s.TceIDs = append(s.TceIDs, tce.TceID)
		if tce.TocID != "" {
			s.TransportOperations++
		}
		if tce.HocID != "" {
			s.HubOperations++
		}
		if tce.Distance != nil && tce.Distance.Actual != nil {
			s.TotalDistance += *tce.Distance.Actual
		}
	}
	return s, nil
}
