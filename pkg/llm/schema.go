package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// rawFinding is the validated wire shape of one LLM finding. It is never
// exposed outside this package; gateFindings converts survivors to the
// domain Finding type.
type rawFinding struct {
	ClauseID     string
	Severity     string
	Summary      string
	Explanation  string
	EvidenceText string
	SpanStart    int
	SpanEnd      int
	Confidence   float64
}

var findingKeys = []string{
	"clause_id",
	"severity",
	"summary",
	"explanation",
	"evidence_text",
	"evidence_span",
	"confidence",
}

// validateResponse strictly validates a decoded LLM response. The response
// must be an object with exactly the key "findings"; each finding must carry
// exactly the expected keys with well-formed values. Unknown keys anywhere
// are rejected. Decode the JSON with json.Number so integer checks hold.
func validateResponse(raw any) ([]rawFinding, error) {
	root, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: root: expected object", ErrValidation)
	}
	if err := requireKeys(root, []string{"findings"}, "root"); err != nil {
		return nil, err
	}
	if err := rejectExtraKeys(root, []string{"findings"}, "root"); err != nil {
		return nil, err
	}

	items, ok := root["findings"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: root.findings: expected array", ErrValidation)
	}

	findings := make([]rawFinding, 0, len(items))
	for idx, item := range items {
		ctx := fmt.Sprintf("finding[%d]", idx)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected object", ErrValidation, ctx)
		}
		if err := requireKeys(obj, findingKeys, ctx); err != nil {
			return nil, err
		}
		if err := rejectExtraKeys(obj, findingKeys, ctx); err != nil {
			return nil, err
		}

		f := rawFinding{}
		var err error
		if f.ClauseID, err = nonEmptyString(obj["clause_id"], ctx+".clause_id"); err != nil {
			return nil, err
		}
		severity, ok := obj["severity"].(string)
		if !ok || (severity != "low" && severity != "medium" && severity != "high") {
			return nil, fmt.Errorf("%w: %s.severity: expected one of low|medium|high", ErrValidation, ctx)
		}
		f.Severity = severity
		if f.Summary, err = nonEmptyString(obj["summary"], ctx+".summary"); err != nil {
			return nil, err
		}
		if f.Explanation, err = nonEmptyString(obj["explanation"], ctx+".explanation"); err != nil {
			return nil, err
		}
		if f.EvidenceText, err = nonEmptyString(obj["evidence_text"], ctx+".evidence_text"); err != nil {
			return nil, err
		}

		span, ok := obj["evidence_span"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.evidence_span: expected object", ErrValidation, ctx)
		}
		spanCtx := ctx + ".evidence_span"
		if err := requireKeys(span, []string{"start", "end"}, spanCtx); err != nil {
			return nil, err
		}
		if err := rejectExtraKeys(span, []string{"start", "end"}, spanCtx); err != nil {
			return nil, err
		}
		if f.SpanStart, err = asInteger(span["start"], spanCtx+".start"); err != nil {
			return nil, err
		}
		if f.SpanEnd, err = asInteger(span["end"], spanCtx+".end"); err != nil {
			return nil, err
		}
		if f.SpanStart < 0 || f.SpanEnd <= f.SpanStart {
			return nil, fmt.Errorf("%w: %s: expected 0 <= start < end", ErrValidation, spanCtx)
		}

		if f.Confidence, err = asNumber(obj["confidence"], ctx+".confidence"); err != nil {
			return nil, err
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			return nil, fmt.Errorf("%w: %s.confidence: expected between 0 and 1", ErrValidation, ctx)
		}

		findings = append(findings, f)
	}

	return findings, nil
}

func requireKeys(obj map[string]any, required []string, ctx string) error {
	var missing []string
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing required keys: %s", ErrValidation, ctx, strings.Join(missing, ", "))
	}
	return nil
}

func rejectExtraKeys(obj map[string]any, allowed []string, ctx string) error {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		allowedSet[k] = struct{}{}
	}
	var extra []string
	for k := range obj {
		if _, ok := allowedSet[k]; !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("%w: %s: unexpected keys: %s", ErrValidation, ctx, strings.Join(extra, ", "))
	}
	return nil
}

func nonEmptyString(v any, ctx string) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s: expected non-empty string", ErrValidation, ctx)
	}
	return s, nil
}

func asInteger(v any, ctx string) (int, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s: expected integer", ErrValidation, ctx)
	}
	i, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: expected integer", ErrValidation, ctx)
	}
	return int(i), nil
}

func asNumber(v any, ctx string) (float64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: %s: expected number", ErrValidation, ctx)
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: expected number", ErrValidation, ctx)
	}
	return f, nil
}
