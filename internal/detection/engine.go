// Package detection scans tool-call traffic for leaked secrets before it
// leaves the probe and after results come back. Detection is advisory: the
// probe reports findings, it never blocks an exchange.
package detection

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/spf13/viper"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

//go:embed rules.toml
var defaultRules []byte

type Engine struct {
	detector *detect.Detector
}

// Finding is a single secret match in scanned text.
type Finding struct {
	RuleID      string
	Description string
	Secret      string
}

// NewEngine creates a detection engine backed by gitleaks. rulesPath selects
// a TOML rule file; when empty the built-in rules are used.
func NewEngine(rulesPath string) (*Engine, error) {
	// Setup viper to read the rule file
	v := viper.New()
	v.SetConfigType("toml")

	if rulesPath != "" {
		v.SetConfigFile(rulesPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read rules: %w", err)
		}
	} else {
		if err := v.ReadConfig(bytes.NewReader(defaultRules)); err != nil {
			return nil, fmt.Errorf("failed to read built-in rules: %w", err)
		}
	}

	// Parse into gitleaks config format
	var vc config.ViperConfig
	if err := v.Unmarshal(&vc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rules: %w", err)
	}

	// Translate to the gitleaks runtime config
	cfg, err := vc.Translate()
	if err != nil {
		return nil, fmt.Errorf("failed to translate rules: %w", err)
	}

	return &Engine{
		detector: detect.NewDetector(cfg),
	}, nil
}

// ScanArguments scans the string values of a tools/call arguments map.
func (e *Engine) ScanArguments(arguments map[string]any) []Finding {
	var findings []Finding
	for _, arg := range arguments {
		if argStr, ok := arg.(string); ok {
			findings = append(findings, e.ScanText(argStr)...)
		}
	}
	return findings
}

// ScanText scans a single blob of text, such as a tool result or descriptor.
func (e *Engine) ScanText(text string) []Finding {
	var findings []Finding
	for _, res := range e.detector.DetectString(text) {
		findings = append(findings, Finding{
			RuleID:      res.RuleID,
			Description: res.Description,
			Secret:      res.Secret,
		})
	}
	return findings
}
