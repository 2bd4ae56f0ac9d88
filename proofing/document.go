package proofing

import (
	"context"
	"encoding/json"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/ahmadzakiakmal/carbon-ledger/footprint"
	"github.com/ahmadzakiakmal/carbon-ledger/repository"
	"github.com/ahmadzakiakmal/carbon-ledger/repository/models"
	"github.com/ahmadzakiakmal/carbon-ledger/sensorclient"
	"github.com/ahmadzakiakmal/carbon-ledger/signer"
)

// Document is the payload sent to the proofing authority.
type Document struct {
	ProductFootprint footprint.ProductFootprint `json:"productFootprint"`
	TocData          []models.TransportRecord   `json:"tocData"`
	HocData          []models.HubRecord         `json:"hocData"`
	SignedSensorData []sensorclient.Evidence    `json:"signedSensorData,omitempty" validate:"omitempty,dive"`
	SignedActivities map[string]signer.Envelope `json:"signedActivities,omitempty"`
}

// Receipt is the proofing authority's answer.
type Receipt struct {
	ProductFootprintID string          `json:"productFootprintId"`
	ProofReceipt       json.RawMessage `json:"proofReceipt,omitempty"`
	ProofReference     string          `json:"proofReference" validate:"required"`
	Pcf                float64         `json:"pcf"`
	ImageID            string          `json:"imageId"`
}

// OperatorResolver looks up operator reference data by id.
type OperatorResolver interface {
	Resolve(ctx context.Context, id string) (*repository.OperatorRecord, bool, error)
}

// Collect assembles the proofing document for doc: every operator record
// referenced by the chain of any extension block, deduplicated, plus the
// sensor evidence and signed activities gathered so far. Unknown operator
// ids are skipped.
func Collect(ctx context.Context, resolver OperatorResolver, doc *footprint.ProductFootprint, evidence []sensorclient.Evidence, activities map[string]signer.Envelope) (*Document, error) {
	if err := footprint.Validate(doc); err != nil {
		return nil, err
	}
	out := &Document{
		ProductFootprint: *doc.Clone(),
		TocData:          []models.TransportRecord{},
		HocData:          []models.HubRecord{},
		SignedSensorData: evidence,
		SignedActivities: activities,
	}

	seenToc := make(map[string]bool)
	seenHoc := make(map[string]bool)
	for _, ext := range doc.Extensions {
		for _, tce := range ext.Data.Tces {
			id := tce.TocID
			if id == "" {
				id = tce.HocID
			}
			if seenToc[id] || seenHoc[id] {
				continue
			}

			rec, ok, err := resolver.Resolve(ctx, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if rec.Transport != nil {
				out.TocData = append(out.TocData, *rec.Transport)
				seenToc[id] = true
			}
			if rec.Hub != nil {
				out.HocData = append(out.HocData, *rec.Hub)
				seenHoc[id] = true
			}
		}
	}
	return out, nil
}

// Validate checks the document before it is published.
func (d *Document) Validate() error {
	if d == nil {
		return apperr.Validation("INVALID_PROOFING_DOCUMENT", "Proofing document is missing", nil)
	}
	if err := footprint.Validate(&d.ProductFootprint); err != nil {
		return err
	}
	return footprint.ValidateStruct("INVALID_PROOFING_DOCUMENT", "Proofing document is malformed", d)
}

// ParseReceipt decodes and validates an inbound receipt.
func ParseReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperr.Validation("INVALID_PROOF_RECEIPT", "Proof receipt is not valid JSON", err)
	}
	if err := footprint.ValidateStruct("INVALID_PROOF_RECEIPT", "Proof receipt is malformed", &r); err != nil {
		return nil, err
	}
	return &r, nil
}
