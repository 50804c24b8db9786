package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// rulesFile is the on-disk layout of PROCESSING_RULES_FILE.
type rulesFile struct {
	Defaults models.ProcessingRules `yaml:"defaults"`
}

// DefaultRules are used for new knowledge spaces when no rules file exists.
func DefaultRules() models.ProcessingRules {
	return models.ProcessingRules{
		RemoveExtraWhitespace: true,
		RemoveURLsEmails:      false,
		TargetTokens:          200,
		OverlapTokens:         20,
		MaxFragmentLen:        1000,
	}
}

// LoadRules reads default processing rules from a YAML file.
// A missing file yields DefaultRules.
func LoadRules(path string) (models.ProcessingRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultRules(), nil
		}
		return models.ProcessingRules{}, err
	}
	rf := rulesFile{Defaults: DefaultRules()}
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return models.ProcessingRules{}, err
	}
	applyRuleDefaults(&rf.Defaults)
	return rf.Defaults, nil
}

// ApplyRuleDefaults fills zero-valued sizing fields so chunking always terminates.
func ApplyRuleDefaults(r *models.ProcessingRules) {
	applyRuleDefaults(r)
}

func applyRuleDefaults(r *models.ProcessingRules) {
	d := DefaultRules()
	if r.TargetTokens <= 0 {
		r.TargetTokens = d.TargetTokens
	}
	if r.OverlapTokens < 0 {
		r.OverlapTokens = 0
	}
	if r.OverlapTokens >= r.TargetTokens {
		r.OverlapTokens = r.TargetTokens / 4
	}
	if r.MaxFragmentLen <= 0 {
		r.MaxFragmentLen = d.MaxFragmentLen
	}
}
