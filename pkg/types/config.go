package types

import "time"

// Source table and jurisdiction defaults for the Google Patents public dataset.
const (
	DefaultSourceTable          = "patents-public-data.patents.publications"
	DefaultCountryCode          = "US"
	DefaultLimit                = 100
	DefaultDescriptionWordLimit = 800
	DefaultEraThreshold         = 2012
)

// DefaultCPCPrefixes are the CPC groups covering can-coating compositions and
// lined metal containers.
var DefaultCPCPrefixes = []string{
	"b65d25/14",
	"c09d7/65",
	"c09d163",
	"c09d167",
}

// DefaultKeywordPhrases restrict matches to food and beverage packaging.
var DefaultKeywordPhrases = []string{
	"food can",
	"beverage can",
	"food container",
	"beverage container",
	"metal can",
	"metal container",
	"can liner",
	"can coating",
}

// QueryConfig describes which publications to extract. Treat it as an
// immutable value: the builder and extractor never modify it.
type QueryConfig struct {
	// StartDate and EndDate are inclusive publication date bounds. Only the
	// calendar date is used.
	StartDate time.Time `json:"start_date" yaml:"start_date"`
	EndDate   time.Time `json:"end_date" yaml:"end_date"`

	// Limit is the maximum number of records emitted by a run.
	Limit int `json:"limit" yaml:"limit"`

	// CPCPrefixes are matched as prefixes against every CPC code of a
	// publication, so a group prefix also matches its subgroups.
	CPCPrefixes []string `json:"cpc_prefixes" yaml:"cpc_prefixes"`

	// KeywordPhrases are matched case-insensitively against title and abstract.
	KeywordPhrases []string `json:"keyword_phrases" yaml:"keyword_phrases"`

	// DescriptionWordLimit caps the description excerpt (default 800).
	DescriptionWordLimit int `json:"description_word_limit" yaml:"description_word_limit"`

	// CountryCode restricts results to one jurisdiction (default "US").
	CountryCode string `json:"country_code" yaml:"country_code"`

	// Table is the fully qualified BigQuery table to read.
	Table string `json:"table" yaml:"table"`
}

// DefaultQueryConfig returns a config covering whole calendar years
// [startYear, endYear] with the built-in CPC and keyword filters.
func DefaultQueryConfig(startYear, endYear int) QueryConfig {
	return QueryConfig{
		StartDate:            time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:              time.Date(endYear, time.December, 31, 0, 0, 0, 0, time.UTC),
		Limit:                DefaultLimit,
		CPCPrefixes:          append([]string(nil), DefaultCPCPrefixes...),
		KeywordPhrases:       append([]string(nil), DefaultKeywordPhrases...),
		DescriptionWordLimit: DefaultDescriptionWordLimit,
		CountryCode:          DefaultCountryCode,
		Table:                DefaultSourceTable,
	}
}

// HTTPConfig holds shared HTTP settings used by clients that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RetryConfig is the bounded exponential backoff policy applied to transient
// failures of the model API and the dataset backend.
type RetryConfig struct {
	// MaxAttempts counts the first call, so 3 means at most two retries.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps any single wait.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// Multiplier grows the delay between attempts.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`

	// Jitter is the fraction of the delay randomized in both directions (0.2 = ±20%).
	Jitter float64 `json:"jitter" yaml:"jitter"`
}

// DefaultRetryConfig returns 3 attempts starting at 1s, doubling, capped at 8s, ±20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// ModelProvider selects the hosted model API used for classification.
type ModelProvider string

const (
	ProviderOpenRouter ModelProvider = "openrouter"
	ProviderAnthropic  ModelProvider = "anthropic"
)

// AIConfig holds settings for the classification model client.
type AIConfig struct {
	HTTPConfig `yaml:",inline"`

	// Provider is openrouter or anthropic.
	Provider ModelProvider `json:"provider" yaml:"provider"`

	// Model is the model identifier understood by the provider.
	Model string `json:"model" yaml:"model"`

	// APIKey is consumed opaquely by the client.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// ClassificationConfig holds settings for the optional classification stage.
type ClassificationConfig struct {
	AIConfig `yaml:",inline"`

	// Enabled is false when the run skips the model entirely.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Retry is the policy for transient model failures.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Delay is the minimum spacing between consecutive model calls.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// Workers is the number of records classified concurrently (default 1).
	Workers int `json:"workers" yaml:"workers"`

	// EraColumn requests the derived era column.
	EraColumn bool `json:"era_column" yaml:"era_column"`

	// EraThreshold is the first year counted as BPA-era for bisphenol labels.
	EraThreshold int `json:"era_threshold" yaml:"era_threshold"`
}

// PipelineConfig groups the settings of one extraction run.
type PipelineConfig struct {
	Query          QueryConfig          `json:"query" yaml:"query"`
	Classification ClassificationConfig `json:"classification" yaml:"classification"`

	// SourceRetry is the policy for rate-limited dataset queries.
	SourceRetry RetryConfig `json:"source_retry" yaml:"source_retry"`

	// Timeout bounds the run; records not started before it are left unclassified.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}
