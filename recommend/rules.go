package recommend

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule is one advisory check. Expression is a CEL boolean over the record
// fields (snake_case JSON names); Message is emitted when it holds.
type Rule struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Message    string `yaml:"message"`
}

// RuleSet is an ordered list of rules plus the message used when none fires.
// Rule order defines output order; it is not a severity ranking.
type RuleSet struct {
	Rules   []Rule `yaml:"rules"`
	Default string `yaml:"default"`
}

// DefaultRuleSet returns the built-in health checks
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: []Rule{
			{
				ID:         "short_sleep",
				Name:       "Short sleep",
				Expression: `sleep_duration < 7.0`,
				Message:    "⏰ Aim for 7-9 hours of sleep per night for optimal health",
			},
			{
				ID:         "poor_sleep_quality",
				Name:       "Poor sleep quality",
				Expression: `quality_of_sleep < 6`,
				Message:    "🛏️ Focus on improving sleep quality - maintain a consistent sleep schedule",
			},
			{
				ID:         "high_stress",
				Name:       "High stress",
				Expression: `stress_level > 6`,
				Message:    "🧘 Practice stress management techniques like meditation, yoga, or deep breathing",
			},
			{
				ID:         "low_activity",
				Name:       "Low physical activity",
				Expression: `physical_activity_level < 30`,
				Message:    "🏃 Increase physical activity to at least 30 minutes of moderate exercise daily",
			},
			{
				ID:         "low_steps",
				Name:       "Low daily steps",
				Expression: `daily_steps < 5000`,
				Message:    "👟 Try to achieve at least 7,000-10,000 steps per day",
			},
			{
				ID:         "elevated_heart_rate",
				Name:       "Elevated heart rate",
				Expression: `heart_rate > 90`,
				Message:    "💓 Monitor your heart rate - consult a doctor if it remains consistently elevated",
			},
			{
				ID:         "elevated_blood_pressure",
				Name:       "Elevated blood pressure",
				Expression: `systolic_bp > 130 || diastolic_bp > 85`,
				Message:    "🩺 Your blood pressure is elevated - please consult a healthcare provider",
			},
		},
		Default: "✨ Your health metrics look good! Keep up the healthy habits",
	}
}

// LoadRuleSet reads a YAML rule file
func LoadRuleSet(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rule file: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rule file: %w", err)
	}
	return rs, nil
}

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks the rule set shape; expressions are checked when compiled
func (rs RuleSet) Validate() error {
	if rs.Default == "" {
		return fmt.Errorf("rule set must define a default message")
	}
	if len(rs.Rules) > 100 {
		return fmt.Errorf("rule set contains %d rules, maximum allowed is 100", len(rs.Rules))
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i, r := range rs.Rules {
		if err := validateIdentifier(r.ID); err != nil {
			return fmt.Errorf("rule %d has invalid id %q: %w", i, r.ID, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule id %q is used twice", r.ID)
		}
		seen[r.ID] = true

		if r.Expression == "" {
			return fmt.Errorf("rule %q has no expression", r.ID)
		}
		if r.Message == "" {
			return fmt.Errorf("rule %q has no message", r.ID)
		}
	}
	return nil
}

func validateIdentifier(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(id))
	}
	if !validIdentifier.MatchString(id) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	return nil
}
