package chat

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"foneai-widget/internal/webhook"
)

// Copy holds the fixed user-facing strings of the widget.
type Copy struct {
	Placeholder     string   `yaml:"placeholder" json:"placeholder"`
	LoadingLabels   []string `yaml:"loading_labels" json:"loadingLabels"`
	FailureText     string   `yaml:"failure_text" json:"failureText"`
	RemediationText string   `yaml:"remediation_text" json:"remediationText"`
}

func DefaultCopy() Copy {
	return Copy{
		Placeholder:     "ASK ME ANYTHING F1 RELATED",
		LoadingLabels:   []string{"ICE BRAKING", "HARVESTING", "DEPLOYING"},
		FailureText:     "Communication failure. The team radio seems to be down. Please try again.",
		RemediationText: webhook.DefaultRemediation,
	}
}

// LoadCopy reads a YAML copy file. Fields missing from the file keep their defaults.
// An empty path returns DefaultCopy.
func LoadCopy(path string) (Copy, error) {
	c := DefaultCopy()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read copy file: %w", err)
	}
	var override Copy
	if err := yaml.Unmarshal(b, &override); err != nil {
		return c, fmt.Errorf("parse copy file %s: %w", path, err)
	}
	if override.Placeholder != "" {
		c.Placeholder = override.Placeholder
	}
	if len(override.LoadingLabels) > 0 {
		c.LoadingLabels = override.LoadingLabels
	}
	if override.FailureText != "" {
		c.FailureText = override.FailureText
	}
	if override.RemediationText != "" {
		c.RemediationText = override.RemediationText
	}
	return c, nil
}
