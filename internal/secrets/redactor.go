package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksregexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Summary describes one redaction pass. Secret values are never included.
type Summary struct {
	Total int            `json:"total"`
	Rules map[string]int `json:"rules,omitempty"`
}

// Redactor replaces detected secrets with [REDACTED:<rule>] markers. The
// marker keeps enough context for the surrounding text to embed sensibly.
type Redactor struct {
	// detect.Detector keeps per-scan state.
	mu       sync.Mutex
	detector *detect.Detector
}

// NewRedactor builds a detector over the gitleaks default rules. Compiling
// the rule set is expensive, so one Redactor should be shared.
func NewRedactor(allowlist *Allowlist) (*Redactor, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if !allowlist.Empty() {
		if err := applyAllowlist(&detector.Config, allowlist); err != nil {
			return nil, err
		}
	}
	return &Redactor{detector: detector}, nil
}

// Redact returns content with every detected secret replaced.
func (r *Redactor) Redact(content string) (string, Summary) {
	if content == "" {
		return content, Summary{}
	}

	r.mu.Lock()
	findings := r.detector.DetectString(content)
	r.mu.Unlock()

	summary := Summary{}
	rules := make(map[string]string, len(findings))
	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		if summary.Rules == nil {
			summary.Rules = make(map[string]int)
		}
		summary.Total++
		summary.Rules[f.RuleID]++
		if _, seen := rules[f.Secret]; !seen {
			rules[f.Secret] = f.RuleID
		}
	}
	if len(rules) == 0 {
		return content, summary
	}

	// Longest first so a secret containing another is replaced whole.
	values := make([]string, 0, len(rules))
	for v := range rules {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) > len(values[j])
		}
		return values[i] < values[j]
	})

	for _, v := range values {
		content = strings.ReplaceAll(content, v, "[REDACTED:"+rules[v]+"]")
	}
	for rule, n := range summary.Rules {
		RedactionsTotal.WithLabelValues(rule).Add(float64(n))
	}
	return content, summary
}

func applyAllowlist(cfg *gitleaksconfig.Config, allowlist *Allowlist) error {
	global := &gitleaksconfig.Allowlist{
		Description: "ragindex allowlist",
		StopWords:   allowlist.StopWords,
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		global.Regexes = append(global.Regexes, (*gitleaksregexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, global)
	return nil
}
