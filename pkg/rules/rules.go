// Package rules applies deterministic clause-level risk rules. Each rule is a
// pure clause → findings function; adding a rule means appending to the
// ruleset slice.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lexroom/reviewd/pkg/models"
)

// DefaultPreferredJurisdiction is used when no jurisdiction is configured.
const DefaultPreferredJurisdiction = "California"

// snippetMaxLen caps evidence snippets persisted with rule findings.
const snippetMaxLen = 280

// Config carries rule-engine configuration.
type Config struct {
	PreferredJurisdiction string
}

// Rule examines one clause and returns zero or more findings.
type Rule func(clause models.Clause, cfg Config) []models.Finding

var ruleset = []Rule{
	ruleTerminationNoticePeriod,
	ruleIndemnityClause,
	ruleConfidentialityDuration,
	ruleGoverningLawMismatch,
}

// Run applies every rule to every clause, in clause × ruleset order.
func Run(clauses []models.Clause, cfg Config) []models.Finding {
	if cfg.PreferredJurisdiction == "" {
		cfg.PreferredJurisdiction = DefaultPreferredJurisdiction
	}
	var findings []models.Finding
	for _, clause := range clauses {
		for _, rule := range ruleset {
			findings = append(findings, rule(clause, cfg)...)
		}
	}
	return findings
}

var (
	terminationRE     = regexp.MustCompile(`(?i)terminate|termination`)
	daysRE            = regexp.MustCompile(`(?i)(\d+)\s+(business\s+)?days?`)
	indemnityRE       = regexp.MustCompile(`(?i)indemnify|indemnification`)
	confidentialityRE = regexp.MustCompile(`(?i)confidentiality|confidential information|non[- ]disclosure|nondisclosure`)
	perpetualRE       = regexp.MustCompile(`(?i)perpetual|in\s+perpetuity|indefinite`)
	yearsRE           = regexp.MustCompile(`(?i)(\d+)\s+years?`)
	governingLawRE    = regexp.MustCompile(`(?i)governing law|laws of`)
)

func ruleTerminationNoticePeriod(clause models.Clause, _ Config) []models.Finding {
	text := clauseText(clause)
	if !terminationRE.MatchString(text) {
		return nil
	}

	minDays, ok := findMinDays(text)
	if !ok {
		return nil
	}

	var severity models.Severity
	var summary string
	switch {
	case minDays < 30:
		severity = models.SeverityHigh
		summary = "Short termination notice period (< 30 days)."
	case minDays < 60:
		severity = models.SeverityMedium
		summary = "Termination notice period between 30 and 60 days."
	default:
		return nil
	}

	explanation := fmt.Sprintf(
		"The termination clause appears to allow termination with only %d days' notice. "+
			"This may be shorter than a typical minimum of 30 days.", minDays)

	return []models.Finding{makeFinding(clause, "TERM_NOTICE_MIN", severity, summary, explanation)}
}

func ruleIndemnityClause(clause models.Clause, _ Config) []models.Finding {
	text := clauseText(clause)
	if !indemnityRE.MatchString(text) {
		return nil
	}

	explanation := "This clause includes indemnity language (e.g., 'indemnify' or 'indemnification'). " +
		"Indemnity provisions can shift significant liability and should be reviewed carefully."

	return []models.Finding{makeFinding(clause, "INDEMNITY_PRESENT", models.SeverityHigh,
		"Indemnity clause present.", explanation)}
}

func ruleConfidentialityDuration(clause models.Clause, _ Config) []models.Finding {
	text := clauseText(clause)
	if !confidentialityRE.MatchString(text) {
		return nil
	}

	if perpetualRE.MatchString(text) {
		explanation := "The confidentiality clause appears to impose obligations in perpetuity or indefinitely. " +
			"This may be more restrictive than typical time-limited confidentiality provisions."
		return []models.Finding{makeFinding(clause, "CONF_PERPETUAL", models.SeverityHigh,
			"Confidentiality obligations appear perpetual.", explanation)}
	}

	maxYears, ok := findMaxYears(text)
	if !ok || maxYears <= 5 {
		return nil
	}

	explanation := fmt.Sprintf(
		"The confidentiality clause appears to apply for %d years, "+
			"which may be longer than common 2-5 year periods.", maxYears)

	return []models.Finding{makeFinding(clause, "CONF_LONG_TERM", models.SeverityMedium,
		"Confidentiality obligations longer than 5 years.", explanation)}
}

func ruleGoverningLawMismatch(clause models.Clause, cfg Config) []models.Finding {
	text := clauseText(clause)
	if !governingLawRE.MatchString(text) {
		return nil
	}
	if strings.Contains(strings.ToLower(text), strings.ToLower(cfg.PreferredJurisdiction)) {
		return nil
	}

	summary := fmt.Sprintf("Governing law differs from preferred jurisdiction (%s).", cfg.PreferredJurisdiction)
	explanation := fmt.Sprintf(
		"The clause appears to specify a governing law other than %s. "+
			"This may affect dispute resolution and should be reviewed.", cfg.PreferredJurisdiction)

	return []models.Finding{makeFinding(clause, "GOV_LAW_MISMATCH", models.SeverityMedium, summary, explanation)}
}

func clauseText(clause models.Clause) string {
	return clause.Heading + "\n" + clause.Body
}

// findMinDays returns the smallest "N days" / "N business days" mention.
func findMinDays(text string) (int, bool) {
	min, found := 0, false
	for _, m := range daysRE.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !found || n < min {
			min, found = n, true
		}
	}
	return min, found
}

// findMaxYears returns the largest "N years" mention.
func findMaxYears(text string) (int, bool) {
	max, found := 0, false
	for _, m := range yearsRE.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !found || n > max {
			max, found = n, true
		}
	}
	return max, found
}

// shortSnippet truncates clause text to the evidence limit, marking cuts
// with a trailing ellipsis. The cut lands on a rune boundary so the snippet
// stays valid UTF-8.
func shortSnippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= snippetMaxLen {
		return text
	}
	cut := snippetMaxLen - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return strings.TrimRight(text[:cut], " \t\n") + "..."
}

func makeFinding(clause models.Clause, ruleCode string, severity models.Severity, summary, explanation string) models.Finding {
	evidence := shortSnippet(clauseText(clause))

	// Span is relative to the clause body; the snippet starts at the heading,
	// so the span covers the body prefix up to the snippet budget.
	end := len(clause.Body)
	if end > snippetMaxLen {
		end = snippetMaxLen
	}
	if end < 1 {
		end = 1
	}

	return models.Finding{
		ID:            uuid.NewString(),
		ClauseID:      clause.ID,
		ChunkID:       clause.ID,
		ClauseHeading: clause.Heading,
		ClauseBody:    clause.Body,
		RuleCode:      ruleCode,
		Severity:      severity,
		Summary:       summary,
		Explanation:   explanation,
		Evidence:      evidence,
		EvidenceSpan:  &models.EvidenceSpan{Start: 0, End: end},
		Source:        models.SourceRule,
	}
}
