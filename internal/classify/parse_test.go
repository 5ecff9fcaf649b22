// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// labelVariants renders l the ways models tend to answer.
func labelVariants(l types.CoatingType) map[string]string {
	s := string(l)
	return map[string]string{
		"exact":          s,
		"lower":          strings.ToLower(s),
		"upper":          strings.ToUpper(s),
		"padded":         "  " + s + " \n",
		"trailing dot":   s + ".",
		"quoted":         `"` + s + `"`,
		"json":           fmt.Sprintf(`{"coating_type": %q, "confidence": 0.9}`, s),
		"fenced json":    fmt.Sprintf("```json\n{\"coating_type\": %q}\n```", s),
		"prose":          "Label: " + s,
		"json with text": fmt.Sprintf(`Here is my answer: {"coating_type": %q}`, s),
		"hyphenated":     strings.Join(tokenize(s), "-"),
		"spaced tokens":  strings.Join(tokenize(s), " "),
	}
}

func TestParse_EveryLabelVariantMapsBack(t *testing.T) {
	for _, l := range types.CoatingLabels {
		for name, variant := range labelVariants(l) {
			t.Run(string(l)+"/"+name, func(t *testing.T) {
				res := Parse(variant)
				require.True(t, res.OK(), "reason=%s detail=%s", res.Reason, res.Detail)
				assert.Equal(t, l, res.Label)
				assert.False(t, res.Ambiguous)
				assert.Equal(t, variant, res.Raw)
			})
		}
	}
}

func TestParse_FailuresAreUnclassified(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"empty", "", ReasonEmptyResponse},
		{"whitespace", "  \n\t", ReasonEmptyResponse},
		{"empty fence", "```\n```", ReasonEmptyResponse},
		{"empty json label", `{"coating_type": ""}`, ReasonEmptyResponse},
		{"null json label", `{"coating_type": null}`, ReasonEmptyResponse},
		{"numeric json label", `{"coating_type": 5}`, ReasonMalformed},
		{"unknown word", "Silicone", ReasonUnknownLabel},
		{"bare epoxy", `{"coating_type": "Epoxy"}`, ReasonUnknownLabel},
		{"refusal", "I cannot determine the coating from this text.", ReasonUnknownLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.raw)
			assert.False(t, res.OK())
			assert.Equal(t, types.Unclassified, res.Label)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Nil(t, res.Confidence)
			assert.Equal(t, tt.raw, res.Raw)
			assert.ErrorIs(t, res.Err(), types.ErrClassificationParse)
		})
	}
}

func TestParse_Confidence(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{`{"coating_type":"PVC","confidence":0.7}`, ptr(0.7)},
		{`{"coating_type":"PVC","confidence":"0.7"}`, ptr(0.7)},
		{`{"coating_type":"PVC","confidence":"70%"}`, ptr(0.7)},
		{`{"coating_type":"PVC","confidence":1}`, ptr(1)},
		{`{"coating_type":"PVC","confidence":0}`, ptr(0)},
		{`{"coating_type":"PVC","confidence":1.5}`, nil},
		{`{"coating_type":"PVC","confidence":-0.1}`, nil},
		{`{"coating_type":"PVC","confidence":null}`, nil},
		{`{"coating_type":"PVC","confidence":"high"}`, nil},
		{`{"coating_type":"PVC"}`, nil},
		{"PVC (confidence: 0.65)", ptr(0.65)},
		{"Polyester, confidence = 85%", ptr(0.85)},
		{"Polyester (80%)", ptr(0.8)},
		{"Acrylic, confidence 7", nil},
		{"Acrylic", nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			res := Parse(tt.raw)
			require.True(t, res.OK(), "reason=%s", res.Reason)
			if tt.want == nil {
				assert.Nil(t, res.Confidence)
				return
			}
			require.NotNil(t, res.Confidence)
			assert.InDelta(t, *tt.want, *res.Confidence, 1e-9)
		})
	}
}

func TestParse_AmbiguousFirstOccurrenceWins(t *testing.T) {
	res := Parse("Either Polyester or Acrylic")
	require.True(t, res.OK())
	assert.Equal(t, types.CoatingPolyester, res.Label)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, []types.CoatingType{types.CoatingPolyester, types.CoatingAcrylic}, res.Candidates)

	res = Parse(`{"coating_type": "Acrylic / Polyester / Hybrid"}`)
	require.True(t, res.OK())
	assert.Equal(t, types.CoatingAcrylic, res.Label)
	assert.Equal(t, []types.CoatingType{types.CoatingAcrylic, types.CoatingPolyester, types.CoatingHybrid}, res.Candidates)

	res = Parse("PVC or PVC")
	assert.Equal(t, types.CoatingPVC, res.Label)
	assert.False(t, res.Ambiguous)
}

func TestParse_NonLabelAnswersAreNotGuessed(t *testing.T) {
	tests := []string{
		"Phenolic",
		"Oleoresin",
		"polyvinyl chloride",
		"bisphenol A epoxy",
		"non-BPA",
		"BPA-free",
		"This is not a PVC coating.",
		"Not Polyester",
		`{"coating_type": "Epoxy (BPA-free)"}`,
		`{"coating_type": "Silicone-modified polyester"}`,
		`{"coating_type": "Polyester-like"}`,
		"Either Polyester or Acrylic, hard to say.",
		"An acrylic-polyester hybrid system",
	}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			res := Parse(raw)
			assert.False(t, res.OK())
			assert.Equal(t, types.Unclassified, res.Label)
			assert.Equal(t, ReasonUnknownLabel, res.Reason)
			assert.Empty(t, res.Candidates)
		})
	}
}

func TestParse_AnswerPrefixes(t *testing.T) {
	for raw, want := range map[string]types.CoatingType{
		"Label: Polyester":                   types.CoatingPolyester,
		"Coating type - Epoxy (BPF)":         types.CoatingEpoxyBPF,
		"answer = BPA-Free (Unspecified)":    types.CoatingBPAFreeOther,
		"Classification: oleoresin/phenolic": types.CoatingOleoresin,
	} {
		res := Parse(raw)
		require.True(t, res.OK(), raw)
		assert.Equal(t, want, res.Label, raw)
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", stripCodeFences("  plain "))
}

func ptr(f float64) *float64 { return &f }
