// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query builds the parameterized BigQuery statement that selects
// coating-chemistry publications from the patents dataset.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/coating-patents/pkg/types"
)

// Bound parameter names.
const (
	ParamStartDate      = "start_date"
	ParamEndDate        = "end_date"
	ParamCountryCode    = "country_code"
	ParamKeywordPattern = "keyword_pattern"
	ParamLimit          = "limit"
)

// tableNameRe accepts project.dataset.table identifiers only.
var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+){1,2}$`)

// selectColumns are read raw; flattening happens in the extractor.
var selectColumns = []string{
	types.FieldPublicationNumber,
	types.FieldPublicationDate,
	types.FieldTitle,
	types.FieldAbstract,
	types.FieldDescription,
	types.FieldClaims,
	types.FieldCPC,
	types.FieldAssignees,
}

// Build validates cfg and returns the query text with its bound parameters.
// Date bounds, country, keyword pattern and limit are parameters; CPC
// prefixes are inlined after normalization and escaping.
func Build(cfg types.QueryConfig) (types.Query, error) {
	if err := Validate(cfg); err != nil {
		return types.Query{}, err
	}

	table := cfg.Table
	if table == "" {
		table = types.DefaultSourceTable
	}
	country := cfg.CountryCode
	if country == "" {
		country = types.DefaultCountryCode
	}

	var b strings.Builder
	b.WriteString("SELECT\n  ")
	b.WriteString(strings.Join(selectColumns, ",\n  "))
	fmt.Fprintf(&b, "\nFROM `%s`\n", table)
	fmt.Fprintf(&b, "WHERE publication_date BETWEEN @%s AND @%s\n", ParamStartDate, ParamEndDate)
	fmt.Fprintf(&b, "  AND country_code = @%s\n", ParamCountryCode)
	b.WriteString("  AND EXISTS (\n    SELECT 1 FROM UNNEST(cpc) AS c\n    WHERE ")
	b.WriteString(cpcCondition(cfg.CPCPrefixes))
	b.WriteString("\n  )\n")
	b.WriteString("  AND (\n")
	fmt.Fprintf(&b, "    EXISTS (SELECT 1 FROM UNNEST(title_localized) AS t WHERE REGEXP_CONTAINS(LOWER(t.text), @%s))\n", ParamKeywordPattern)
	fmt.Fprintf(&b, "    OR EXISTS (SELECT 1 FROM UNNEST(abstract_localized) AS a WHERE REGEXP_CONTAINS(LOWER(a.text), @%s))\n", ParamKeywordPattern)
	b.WriteString("  )\n")
	b.WriteString("ORDER BY publication_date DESC, publication_number\n")
	fmt.Fprintf(&b, "LIMIT @%s\n", ParamLimit)

	return types.Query{
		Text: b.String(),
		Params: []types.QueryParam{
			{Name: ParamStartDate, Type: "INT64", Value: DateInt(cfg.StartDate)},
			{Name: ParamEndDate, Type: "INT64", Value: DateInt(cfg.EndDate)},
			{Name: ParamCountryCode, Type: "STRING", Value: country},
			{Name: ParamKeywordPattern, Type: "STRING", Value: KeywordPattern(cfg.KeywordPhrases)},
			{Name: ParamLimit, Type: "INT64", Value: int64(cfg.Limit)},
		},
	}, nil
}

// Validate checks the invariants of a QueryConfig.
func Validate(cfg types.QueryConfig) error {
	if cfg.StartDate.IsZero() {
		return &types.ConfigError{Field: "start_date", Reason: "is required"}
	}
	if cfg.EndDate.IsZero() {
		return &types.ConfigError{Field: "end_date", Reason: "is required"}
	}
	if DateInt(cfg.StartDate) > DateInt(cfg.EndDate) {
		return &types.ConfigError{Field: "start_date", Reason: fmt.Sprintf("%s is after end date %s",
			cfg.StartDate.Format(time.DateOnly), cfg.EndDate.Format(time.DateOnly))}
	}
	if cfg.Limit <= 0 {
		return &types.ConfigError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", cfg.Limit)}
	}
	if cfg.DescriptionWordLimit <= 0 {
		return &types.ConfigError{Field: "description_word_limit", Reason: fmt.Sprintf("must be positive, got %d", cfg.DescriptionWordLimit)}
	}
	if len(cfg.CPCPrefixes) == 0 {
		return &types.ConfigError{Field: "cpc_prefixes", Reason: "at least one prefix is required"}
	}
	for i, p := range cfg.CPCPrefixes {
		if NormalizeCPC(p) == "" {
			return &types.ConfigError{Field: "cpc_prefixes", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	if len(cfg.KeywordPhrases) == 0 {
		return &types.ConfigError{Field: "keyword_phrases", Reason: "at least one phrase is required"}
	}
	for i, k := range cfg.KeywordPhrases {
		if strings.TrimSpace(k) == "" {
			return &types.ConfigError{Field: "keyword_phrases", Reason: fmt.Sprintf("entry %d is empty", i)}
		}
	}
	if cfg.Table != "" && !tableNameRe.MatchString(cfg.Table) {
		return &types.ConfigError{Field: "table", Reason: fmt.Sprintf("%q is not a table identifier", cfg.Table)}
	}
	return nil
}

// DateInt converts the calendar date of t to an integer YYYYMMDD.
func DateInt(t time.Time) int64 {
	return int64(t.Year())*10000 + int64(t.Month())*100 + int64(t.Day())
}

// NormalizeCPC removes all whitespace from a CPC code or prefix and lower-cases it.
func NormalizeCPC(code string) string {
	return strings.ToLower(strings.Join(strings.Fields(code), ""))
}

// cpcCondition ORs one prefix predicate per distinct normalized prefix.
func cpcCondition(prefixes []string) string {
	seen := make(map[string]bool)
	var clauses []string
	for _, p := range prefixes {
		n := NormalizeCPC(p)
		if seen[n] {
			continue
		}
		seen[n] = true
		clauses = append(clauses, fmt.Sprintf("LOWER(REPLACE(c.code, ' ', '')) LIKE '%s%%'", escapeLike(n)))
	}
	return strings.Join(clauses, "\n       OR ")
}

// escapeLike escapes s for use inside a single-quoted LIKE pattern literal.
// Backslash, quote and the LIKE wildcards are taken literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(
		`\`, `\\\\`,
		`%`, `\\%`,
		`_`, `\\_`,
		`'`, `\'`,
	)
	return r.Replace(s)
}

// KeywordPattern returns an RE2 alternation of the lower-cased phrases, each
// with collapsed whitespace and regexp metacharacters escaped.
func KeywordPattern(phrases []string) string {
	terms := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.Join(strings.Fields(p), " "))
		if p == "" {
			continue
		}
		terms = append(terms, regexp.QuoteMeta(p))
	}
	return "(" + strings.Join(terms, "|") + ")"
}
