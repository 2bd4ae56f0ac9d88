package footprint

import (
	"fmt"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/google/uuid"
)

// OperatorKind distinguishes transport legs from hub stops.
type OperatorKind int

const (
	OperatorUnknown OperatorKind = iota
	OperatorTransport
	OperatorHub
)

func (k OperatorKind) String() string {
	switch k {
	case OperatorTransport:
		return "transport"
	case OperatorHub:
		return "hub"
	default:
		return "unknown"
	}
}

// OperatorRef names exactly one operator: a transport operation (tocId) or
// a hub operation (hocId). The zero value is invalid.
type OperatorRef struct {
	kind OperatorKind
	id   string
}

// TransportOperator references a transport operation category.
func TransportOperator(tocID string) OperatorRef {
	return OperatorRef{kind: OperatorTransport, id: tocID}
}

// HubOperator references a hub operation category.
func HubOperator(hocID string) OperatorRef {
	return OperatorRef{kind: OperatorHub, id: hocID}
}

// NewOperatorRef builds a reference from raw ids, exactly one of which
// must be non-empty.
func NewOperatorRef(tocID, hocID string) (OperatorRef, error) {
	switch {
	case tocID != "" && hocID != "":
		return OperatorRef{}, apperr.ContractViolation("OPERATOR_REF_AMBIGUOUS",
			"A chain link references exactly one operator", nil).
			WithDetail("both tocId %q and hocId %q supplied", tocID, hocID)
	case tocID != "":
		return TransportOperator(tocID), nil
	case hocID != "":
		return HubOperator(hocID), nil
	default:
		return OperatorRef{}, apperr.ContractViolation("OPERATOR_REF_MISSING",
			"A chain link references exactly one operator", nil).
			WithDetail("neither tocId nor hocId supplied")
	}
}

func (r OperatorRef) Kind() OperatorKind { return r.kind }
func (r OperatorRef) ID() string         { return r.id }

func (r OperatorRef) validate() error {
	if r.kind == OperatorUnknown || r.id == "" {
		return apperr.ContractViolation("OPERATOR_REF_MISSING",
			"A chain link references exactly one operator", nil).
			WithDetail("kind=%s id=%q", r.kind, r.id)
	}
	return nil
}

// EmissionModel estimates the emissions of a transport leg from its
// transport activity in tonne-kilometres.
type EmissionModel interface {
	Estimate(transportActivity float64) Emissions
}

// ChainBuilder appends links to the TCE chain of a footprint document.
// Callers must serialize appends to the same document.
type ChainBuilder struct {
	emissions EmissionModel
	newID     func() string
}

// NewChainBuilder returns a builder. A nil model leaves emission fields unset.
func NewChainBuilder(model EmissionModel) *ChainBuilder {
	return &ChainBuilder{emissions: model, newID: uuid.NewString}
}

// NewLinkID allocates an identifier for a link that is about to be appended.
func (b *ChainBuilder) NewLinkID() string {
	return b.newID()
}

// AppendLink appends a link to the chain of the extension carrying shipmentID.
func (b *ChainBuilder) AppendLink(doc *ProductFootprint, shipmentID string, mass float64, ref OperatorRef, distance *Distance) (TCE, error) {
	return b.AppendLinkWithID(doc, b.newID(), shipmentID, mass, ref, distance)
}

// AppendLinkWithID is AppendLink with a caller-allocated link id.
func (b *ChainBuilder) AppendLinkWithID(doc *ProductFootprint, linkID, shipmentID string, mass float64, ref OperatorRef, distance *Distance) (TCE, error) {
	if err := ref.validate(); err != nil {
		return TCE{}, err
	}
	if linkID == "" {
		return TCE{}, apperr.ContractViolation("LINK_ID_MISSING", "Link id must not be empty", nil)
	}

	idx := doc.extensionIndex(shipmentID)
	if idx < 0 {
		return TCE{}, apperr.Validation("SHIPMENT_NOT_FOUND",
			"Footprint has no extension for the shipment", nil).
			WithDetail("shipmentId=%s", shipmentID)
	}

	data := &doc.Extensions[idx].Data
	link := b.newLink(linkID, shipmentID, mass, ref, distance, predecessorsOf(data.Tces))
	data.Tces = append(data.Tces, link)
	return link.clone(), nil
}

// NewStandaloneLink creates a link outside any document, with an explicit
// predecessor list.
func (b *ChainBuilder) NewStandaloneLink(shipmentID string, mass float64, ref OperatorRef, distance *Distance, prev []string) (TCE, error) {
	if err := ref.validate(); err != nil {
		return TCE{}, err
	}
	return b.newLink(b.newID(), shipmentID, mass, ref, distance, append([]string{}, prev...)), nil
}

func (b *ChainBuilder) newLink(id, shipmentID string, mass float64, ref OperatorRef, distance *Distance, prev []string) TCE {
	link := TCE{
		TceID:      id,
		PrevTceIDs: prev,
		ShipmentID: shipmentID,
		Mass:       mass,
	}
	switch ref.kind {
	case OperatorTransport:
		link.TocID = ref.id
	case OperatorHub:
		link.HocID = ref.id
	}

	if distance != nil {
		d := Distance{Actual: clonePtr(distance.Actual), GCD: clonePtr(distance.GCD), SFD: clonePtr(distance.SFD)}
		link.Distance = &d
		if d.Actual != nil {
			link.TransportActivity = Float(TransportActivity(mass, *d.Actual))
		}
	}

	if b.emissions != nil && link.TransportActivity != nil {
		em := b.emissions.Estimate(*link.TransportActivity)
		link.Co2eTTW = Float(em.Co2eTTW)
		link.Co2eWTW = Float(em.Co2eWTW)
		link.NoxTTW = clonePtr(em.NoxTTW)
		link.SoxTTW = clonePtr(em.SoxTTW)
		link.Ch4TTW = clonePtr(em.Ch4TTW)
		link.PmTTW = clonePtr(em.PmTTW)
	}
	return link
}

// TransportActivity converts a mass in kg and a distance in km to tkm.
func TransportActivity(massKg, distanceKm float64) float64 {
	return massKg / 1000 * distanceKm
}

// predecessorsOf computes the full ancestry for the next link of chain.
func predecessorsOf(chain []TCE) []string {
	if len(chain) == 0 {
		return []string{}
	}
	last := chain[len(chain)-1]
	prev := make([]string, 0, len(last.PrevTceIDs)+1)
	prev = append(prev, last.PrevTceIDs...)
	return append(prev, last.TceID)
}

// VerifyChain checks that every link carries the full ordered ancestry of
// the links before it and references exactly one operator.
func VerifyChain(chain []TCE) error {
	for i, link := range chain {
		if (link.TocID == "") == (link.HocID == "") {
			return apperr.ContractViolation("OPERATOR_REF_INVALID",
				"A chain link references exactly one operator", nil).
				WithDetail("link %d (%s)", i, link.TceID)
		}
		if len(link.PrevTceIDs) != i {
			return apperr.Validation("CHAIN_BROKEN", "Chain link has an incomplete ancestry", nil).
				WithDetail("link %d (%s) lists %d predecessors", i, link.TceID, len(link.PrevTceIDs))
		}
		for j, prevID := range link.PrevTceIDs {
			if prevID != chain[j].TceID {
				return apperr.Validation("CHAIN_BROKEN", "Chain link ancestry is out of order", nil).
					WithDetail("link %d (%s) predecessor %d is %s, want %s", i, link.TceID, j, prevID, chain[j].TceID)
			}
		}
	}
	return nil
}

// LinkKey is the artifact key under which a link's signed activity is stored.
func LinkKey(tceID string) string {
	return fmt.Sprintf("TCE_%s", tceID)
}
