package classifier

import (
	"math/rand/v2"

	"landreg/internal/registry/models"
)

// Values used for clean scenarios. They are chosen to share nothing with a
// real parcel.
const (
	cleanNationalID = "999999/99/1"
	cleanLocation   = "Plot 99999, New Extension, Ndola"
	cleanName       = "New Citizen"
	stolenName      = "Fraudulent Applicant"
	nearMatchSuffix = " EXT"
)

// Example is one labelled training row.
type Example struct {
	Features Features
	Label    int // 1 conflict, 0 clean
}

// Synthesizer mutates real parcels into labelled scenarios.
type Synthesizer struct {
	r *rand.Rand
}

func NewSynthesizer(r *rand.Rand) *Synthesizer {
	return &Synthesizer{r: r}
}

// Generate draws n examples, each against a uniformly chosen parcel.
func (s *Synthesizer) Generate(parcels []*models.Parcel, n int) []Example {
	if len(parcels) == 0 {
		return nil
	}
	out := make([]Example, 0, n)
	for range n {
		target := parcels[s.r.IntN(len(parcels))]
		out = append(out, s.Scenario(target))
	}
	return out
}

// Scenario builds a conflicting application with probability 0.5, otherwise a
// clean one.
func (s *Synthesizer) Scenario(target *models.Parcel) Example {
	if s.r.Float64() > 0.5 {
		c := Candidate{NationalID: target.OwnerNationalID, Location: target.Location, Name: target.OwnerName}
		if s.r.Float64() > 0.5 {
			c.Location += nearMatchSuffix
		}
		if s.r.Float64() <= 0.5 {
			c.Name = stolenName
		}
		// Uniform on (0.1, 1.0].
		overlap := 1.0 - s.r.Float64()*0.9
		return Example{Features: Compute(c, target, overlap), Label: 1}
	}
	c := Candidate{NationalID: cleanNationalID, Location: cleanLocation, Name: cleanName}
	return Example{Features: Compute(c, target, 0), Label: 0}
}
