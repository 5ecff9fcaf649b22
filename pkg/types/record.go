// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the coating-patents pipeline:
// query configuration, raw dataset rows, normalized records, the coating label
// taxonomy, and the error kinds shared across stages.
package types

import "strings"

// LocalizedText is one entry of a repeated, localized text field such as
// title_localized or claims_localized.
type LocalizedText struct {
	Language string `json:"language" yaml:"language"`
	Text     string `json:"text" yaml:"text"`
}

// FirstEnglish returns the text of the first entry whose language is "en"
// (case-insensitive), or "" when there is none.
func FirstEnglish(entries []LocalizedText) string {
	for _, e := range entries {
		if strings.EqualFold(strings.TrimSpace(e.Language), "en") {
			return e.Text
		}
	}
	return ""
}

// CPCEntry is one CPC classification attached to a publication.
type CPCEntry struct {
	Code      string   `json:"code" yaml:"code"`
	Inventive bool     `json:"inventive,omitempty" yaml:"inventive,omitempty"`
	First     bool     `json:"first,omitempty" yaml:"first,omitempty"`
	Tree      []string `json:"tree,omitempty" yaml:"tree,omitempty"`
}

// Assignee is one harmonized assignee of a publication.
type Assignee struct {
	Name        string `json:"name" yaml:"name"`
	CountryCode string `json:"country_code,omitempty" yaml:"country_code,omitempty"`
}

// Raw row field names, matching the publications table columns.
const (
	FieldPublicationNumber = "publication_number"
	FieldPublicationDate   = "publication_date"
	FieldTitle             = "title_localized"
	FieldAbstract          = "abstract_localized"
	FieldDescription       = "description_localized"
	FieldClaims            = "claims_localized"
	FieldCPC               = "cpc"
	FieldAssignees         = "assignee_harmonized"
)

// RawRow is a dataset row as handed over by a row source. Localized fields
// hold []LocalizedText, cpc holds []CPCEntry, assignee_harmonized holds
// []Assignee, publication_date holds an integer YYYYMMDD.
type RawRow map[string]any

// Record is the normalized unit flowing through the pipeline.
type Record struct {
	PublicationNumber string   `json:"publication_number" yaml:"publication_number"`
	PublicationDate   int      `json:"publication_date" yaml:"publication_date"`
	Title             string   `json:"title" yaml:"title"`
	Abstract          string   `json:"abstract" yaml:"abstract"`
	Assignee          string   `json:"assignee" yaml:"assignee"`
	CPCCodes          []string `json:"cpc_codes" yaml:"cpc_codes"`
	Description       string   `json:"description" yaml:"description"`
	FirstClaim        string   `json:"first_claim" yaml:"first_claim"`

	// Set only when classification ran. CoatingType is Unclassified when
	// the model failed or answered outside the label set.
	CoatingType              CoatingType `json:"coating_type,omitempty" yaml:"coating_type,omitempty"`
	ClassificationConfidence *float64    `json:"classification_confidence,omitempty" yaml:"classification_confidence,omitempty"`
	Era                      Era         `json:"era,omitempty" yaml:"era,omitempty"`
}

// PublicationYear returns the year part of PublicationDate.
func (r Record) PublicationYear() int {
	return r.PublicationDate / 10000
}
