// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"bytes"
	"strings"
	"text/template"
	"unicode"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// Character budgets for the free-text parts of the prompt.
const (
	descriptionChars = 1200
	claimChars       = 800
	abstractChars    = 2000
)

// SystemPrompt frames the model as a domain expert.
const SystemPrompt = "You are a materials scientist specialised in can coating chemistries."

var classificationPromptTmpl = template.Must(template.New("classification").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Classify the coating chemistry for the following patent. Respond with a compact JSON object containing only the key "coating_type" using one of the allowed categories, and an optional "confidence" number between 0 and 1.

Allowed categories: {{join .Labels ", "}}

Publication number: {{.PublicationNumber}}
Publication date: {{.PublicationDate}}
Title: {{.Title}}
Abstract: {{.Abstract}}
Assignee: {{.Assignee}}
CPC Codes: {{join .CPCCodes ", "}}
Description excerpt: {{.Description}}
First claim excerpt: {{.FirstClaim}}
`))

type promptData struct {
	Labels            []string
	PublicationNumber string
	PublicationDate   int
	Title             string
	Abstract          string
	Assignee          string
	CPCCodes          []string
	Description       string
	FirstClaim        string
}

// BuildPrompt renders the classification prompt for rec. Long text fields
// are cut at a word boundary so the prompt size stays bounded.
func BuildPrompt(rec types.Record) (Prompt, error) {
	labels := make([]string, len(types.CoatingLabels))
	for i, l := range types.CoatingLabels {
		labels[i] = string(l)
	}

	data := promptData{
		Labels:            labels,
		PublicationNumber: rec.PublicationNumber,
		PublicationDate:   rec.PublicationDate,
		Title:             rec.Title,
		Abstract:          truncateChars(rec.Abstract, abstractChars),
		Assignee:          rec.Assignee,
		CPCCodes:          rec.CPCCodes,
		Description:       truncateChars(rec.Description, descriptionChars),
		FirstClaim:        truncateChars(rec.FirstClaim, claimChars),
	}

	var buf bytes.Buffer
	if err := classificationPromptTmpl.Execute(&buf, data); err != nil {
		return Prompt{}, err
	}
	return Prompt{System: SystemPrompt, User: buf.String()}, nil
}

// truncateChars returns at most n characters of s. When s is longer, the
// cut is moved back to the last whitespace inside the first n characters.
func truncateChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	cut := runes[:n]
	if unicode.IsSpace(runes[n]) {
		return strings.TrimRightFunc(string(cut), unicode.IsSpace)
	}
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace)
}
