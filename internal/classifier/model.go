package classifier

import (
	"encoding/json"
	"fmt"
	"time"
)

// Object keys for the trained artifacts.
const (
	ModelKey   = "models/conflict_classifier.json"
	DatasetKey = "datasets/conflict_training.parquet"
)

const modelVersion = 1

// Model is the persisted classifier.
type Model struct {
	Version      int       `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	TrainedAt    time.Time `json:"trained_at"`
	Samples      int       `json:"samples"`
	Accuracy     float64   `json:"holdout_accuracy"`
	Forest       *Forest   `json:"forest"`
}

// Score returns the conflict probability for f.
func (m *Model) Score(f Features) float64 {
	return m.Forest.PredictProba(f.Vector())
}

func (m *Model) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// LoadModel parses an artifact written by Marshal.
func LoadModel(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if m.Version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", m.Version)
	}
	if m.Forest == nil || len(m.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	if m.Forest.Features != len(FeatureNames) {
		return nil, fmt.Errorf("model expects %d features, have %d", m.Forest.Features, len(FeatureNames))
	}
	return &m, nil
}
