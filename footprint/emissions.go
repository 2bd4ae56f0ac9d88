package footprint

import (
	"math/rand/v2"
)

// Emissions is an emission estimate for one transport leg.
type Emissions struct {
	Co2eTTW float64
	Co2eWTW float64
	NoxTTW  *float64
	SoxTTW  *float64
	Ch4TTW  *float64
	PmTTW   *float64
}

// Float64Source yields uniform values in [0, 1).
type Float64Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// SimulatedEmissions draws plausible heavy-truck emission values. It stands
// in for a real emission factor database.
type SimulatedEmissions struct {
	src Float64Source
}

// NewSimulatedEmissions returns a model drawing from src, or from the
// global generator when src is nil.
func NewSimulatedEmissions(src Float64Source) *SimulatedEmissions {
	if src == nil {
		src = globalSource{}
	}
	return &SimulatedEmissions{src: src}
}

func (m *SimulatedEmissions) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*m.src.Float64()
}

func (m *SimulatedEmissions) maybe(probability, lo, hi, tkm float64) *float64 {
	if m.src.Float64() >= probability {
		return nil
	}
	return Float(tkm * m.uniform(lo, hi))
}

// Estimate implements EmissionModel.
func (m *SimulatedEmissions) Estimate(tkm float64) Emissions {
	factorTTW := m.uniform(0.06, 0.12)
	wtwMultiplier := m.uniform(1.15, 1.25)

	var em Emissions
	em.Co2eTTW = tkm * factorTTW
	em.Co2eWTW = em.Co2eTTW * wtwMultiplier

	em.NoxTTW = m.maybe(0.8, 0.0005, 0.003, tkm)
	em.SoxTTW = m.maybe(0.3, 0.00001, 0.00005, tkm)
	em.Ch4TTW = m.maybe(0.5, 0.00002, 0.0001, tkm)
	em.PmTTW = m.maybe(0.7, 0.00003, 0.00015, tkm)
	return em
}
