// Package classifier produces the conflict classifier: a random forest over
// four engineered features, trained on synthetic scenarios derived from real
// parcels.
package classifier

import (
	"landreg/internal/detection/similarity"
	"landreg/internal/registry/models"
	pstrings "landreg/pkg/platform/strings"
)

// FeatureNames lists the model inputs in vector order.
var FeatureNames = []string{"location_similarity", "name_similarity", "id_match", "spatial_overlap"}

// Features describes how closely an application resembles a registered parcel.
type Features struct {
	LocationSimilarity float64 `json:"location_similarity"`
	NameSimilarity     float64 `json:"name_similarity"`
	IDMatch            float64 `json:"id_match"`
	SpatialOverlap     float64 `json:"spatial_overlap"`
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{f.LocationSimilarity, f.NameSimilarity, f.IDMatch, f.SpatialOverlap}
}

// Candidate is the application side of a comparison.
type Candidate struct {
	NationalID string
	Location   string
	Name       string
}

// Compute derives features for candidate against target. Overlap comes from a
// geospatial source outside this package.
func Compute(c Candidate, target *models.Parcel, overlap float64) Features {
	f := Features{
		LocationSimilarity: similarity.TextSimilarity(c.Location, target.Location),
		NameSimilarity:     similarity.TextSimilarity(c.Name, target.OwnerName),
		SpatialOverlap:     overlap,
	}
	if c.NationalID != "" && pstrings.NormalizeIdentifier(c.NationalID) == pstrings.NormalizeIdentifier(target.OwnerNationalID) {
		f.IDMatch = 1
	}
	return f
}
