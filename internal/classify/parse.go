// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// labelTokens holds each label's canonical token sequence, e.g.
// "Epoxy (BPA)" -> [epoxy bpa].
var labelTokens = func() map[types.CoatingType][]string {
	m := make(map[types.CoatingType][]string, len(types.CoatingLabels))
	for _, l := range types.CoatingLabels {
		m[l] = tokenize(string(l))
	}
	return m
}()

// connectors may join several labels in one answer ("Polyester or Acrylic").
var connectors = map[string]bool{"or": true, "and": true, "either": true}

var (
	confidenceRe = regexp.MustCompile(`(?i)confidence["']?\s*[:=]?\s*(?:of\s+)?([0-9]*\.?[0-9]+)\s*(%)?`)
	percentRe    = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)
	answerPrefix = regexp.MustCompile(`(?i)^\s*(?:label|answer|coating type|coating|classification)\s*[:=-]\s*`)
)

// Parse turns a raw model response into a Result. It never fails: answers
// that cannot be mapped onto the label set come back unclassified with the
// raw text retained.
func Parse(raw string) Result {
	res := Result{Label: types.Unclassified, Raw: raw}

	text := strings.TrimSpace(stripCodeFences(raw))
	if text == "" {
		res.Reason = ReasonEmptyResponse
		return res
	}

	answer := text
	var conf *float64
	fromJSON := false

	if obj, ok := decodeObject(text); ok {
		if v, present := obj["coating_type"]; present {
			fromJSON = true
			s, isString := v.(string)
			if v != nil && !isString {
				res.Reason = ReasonMalformed
				res.Detail = fmt.Sprintf("coating_type is %T", v)
				return res
			}
			answer = strings.TrimSpace(s)
			if answer == "" {
				res.Reason = ReasonEmptyResponse
				return res
			}
			if c, present := obj["confidence"]; present {
				conf = confidenceValue(c)
			}
		}
	}
	if !fromJSON {
		conf = confidenceFromText(text)
		answer = stripAnnotations(text)
	}

	label, candidates, ok := matchLabel(answer)
	if !ok {
		res.Reason = ReasonUnknownLabel
		res.Detail = fmt.Sprintf("no label in %q", truncateChars(answer, 120))
		return res
	}

	res.Label = label
	res.Confidence = conf
	if len(candidates) > 1 {
		res.Ambiguous = true
		res.Candidates = candidates
	}
	return res
}

// stripAnnotations removes confidence remarks and a leading "Label:" style
// prefix from a free-text answer.
func stripAnnotations(text string) string {
	text = confidenceRe.ReplaceAllString(text, " ")
	text = percentRe.ReplaceAllString(text, " ")
	return answerPrefix.ReplaceAllString(text, "")
}

// matchLabel accepts an answer only when it is a label, compared
// case-insensitively and ignoring punctuation, or several labels joined by
// connectors. Any other word, such as a negation or a modifier, rejects the
// answer. With several labels the first wins and candidates lists them all
// in order of appearance.
func matchLabel(answer string) (types.CoatingType, []types.CoatingType, bool) {
	trimmed := strings.Trim(strings.TrimSpace(answer), `"'.`)
	for _, l := range types.CoatingLabels {
		if strings.EqualFold(trimmed, string(l)) {
			return l, nil, true
		}
	}

	tokens := tokenize(answer)
	var found []types.CoatingType
	for i := 0; i < len(tokens); {
		if connectors[tokens[i]] {
			i++
			continue
		}
		l, n := labelAt(tokens, i)
		if n == 0 {
			return "", nil, false
		}
		if !slices.Contains(found, l) {
			found = append(found, l)
		}
		i += n
	}
	switch len(found) {
	case 0:
		return "", nil, false
	case 1:
		return found[0], nil, true
	default:
		return found[0], found, true
	}
}

// labelAt returns the label whose token sequence starts at tokens[i] and its
// length, preferring the longest sequence. n is 0 when none starts there.
func labelAt(tokens []string, i int) (label types.CoatingType, n int) {
	for _, l := range types.CoatingLabels {
		seq := labelTokens[l]
		if len(seq) > n && i+len(seq) <= len(tokens) && slices.Equal(tokens[i:i+len(seq)], seq) {
			label, n = l, len(seq)
		}
	}
	return label, n
}

// tokenize lower-cases s and splits it into runs of letters and digits.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// decodeObject decodes the first JSON object embedded in text.
func decodeObject(text string) (map[string]any, bool) {
	candidate := extractJSONObject(text)
	if candidate == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// confidenceValue accepts a JSON number, a numeric string or a percentage.
func confidenceValue(v any) *float64 {
	switch c := v.(type) {
	case float64:
		return inUnitRange(c)
	case string:
		s := strings.TrimSpace(c)
		if strings.HasSuffix(s, "%") {
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
			if err != nil {
				return nil
			}
			return inUnitRange(f / 100)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return inUnitRange(f)
	default:
		return nil
	}
}

// confidenceFromText looks for "confidence: x" first, then a bare percentage.
func confidenceFromText(text string) *float64 {
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		if m[2] == "%" {
			f /= 100
		}
		return inUnitRange(f)
	}
	if m := percentRe.FindStringSubmatch(text); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		return inUnitRange(f / 100)
	}
	return nil
}

func inUnitRange(f float64) *float64 {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return nil
	}
	return &f
}

// stripCodeFences removes a surrounding Markdown code fence with an
// optional language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		} else {
			s = strings.TrimPrefix(s, "```")
			s = strings.TrimPrefix(s, "json")
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}
