package intel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKeywords is the built-in suspicious phrase list. Matching is
// case-insensitive substring membership over folded text.
var DefaultKeywords = []string{
	"urgent", "verify", "account blocked", "blocked today", "suspended",
	"freeze", "kyc", "otp", "pin", "cvv", "click", "link", "refund",
	"cashback", "upi", "bank account", "share details", "immediately",
}

// keywordFile is the YAML schema for keyword overrides.
type keywordFile struct {
	Keywords []string `yaml:"keywords"`
	// Extra keywords appended to the default list instead of replacing it.
	Extend bool `yaml:"extend"`
}

// LoadKeywordsFile reads a keyword list from a YAML file. With `extend: true`
// the file's keywords are appended to DefaultKeywords; otherwise they replace
// the defaults entirely.
func LoadKeywordsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords file: %w", err)
	}

	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keywords file %s: %w", path, err)
	}
	if len(kf.Keywords) == 0 {
		return nil, fmt.Errorf("keywords file %s contains no keywords", path)
	}

	if kf.Extend {
		merged := make([]string, 0, len(DefaultKeywords)+len(kf.Keywords))
		merged = append(merged, DefaultKeywords...)
		merged = append(merged, kf.Keywords...)
		return merged, nil
	}
	return kf.Keywords, nil
}
