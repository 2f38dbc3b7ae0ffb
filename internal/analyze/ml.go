package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/threatfuse/internal/model"
)

// Classifier estimates how likely a target is to be malicious
type Classifier interface {
	// Name returns the backend name
	Name() string

	// Analyze returns the classifier report for the target
	Analyze(ctx context.Context, target model.Target) (*model.MlReport, error)
}

// ErrBadClassification is returned when the model answer cannot be parsed
var ErrBadClassification = errors.New("unparseable classification")

const maxFeatures = 5

const classifierSystemPrompt = "You are a security classifier. You answer only with a single JSON object and no prose."

// NewClassifier builds the configured ML backend. It returns nil, nil when ML is disabled.
func NewClassifier(cfg model.MLConfig, h model.HTTPConfig) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIClassifier(cfg)
	case "ollama":
		return NewOllamaClassifier(cfg, h)
	case "", "none", "off":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ML provider: %s (supported: openai, ollama)", cfg.Provider)
	}
}

// buildPrompt asks for a probability and the features that drove it
func buildPrompt(target model.Target) string {
	return fmt.Sprintf(`Estimate the probability that the following %s is malicious (phishing, malware delivery, scam or impersonation).

Target: %s

Answer with JSON only, in exactly this shape:
{"probability": <number between 0 and 1>, "features": [{"name": "<short feature name>", "weight": <number between -1 and 1>}]}

List at most %d features. Positive weights push towards malicious, negative towards benign.`,
		strings.ToLower(string(target.Type)), target.Value, maxFeatures)
}

type classification struct {
	Probability *float64        `json:"probability"`
	Features    []model.Feature `json:"features"`
}

// parseClassification extracts the JSON object from a model answer, tolerating
// code fences and surrounding prose
func parseClassification(answer, modelName string) (*model.MlReport, error) {
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrBadClassification, truncateAnswer(answer))
	}

	var c classification
	if err := json.Unmarshal([]byte(answer[start:end+1]), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadClassification, err)
	}
	if c.Probability == nil {
		return nil, fmt.Errorf("%w: missing probability", ErrBadClassification)
	}

	features := make([]model.Feature, 0, len(c.Features))
	for _, f := range c.Features {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		features = append(features, f)
	}
	sort.SliceStable(features, func(i, j int) bool {
		return abs(features[i].Weight) > abs(features[j].Weight)
	})
	if len(features) > maxFeatures {
		features = features[:maxFeatures]
	}

	return &model.MlReport{
		Probability: model.Clamp01(*c.Probability),
		TopFeatures: features,
		Model:       modelName,
	}, nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func truncateAnswer(s string) string {
	n := 120
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
