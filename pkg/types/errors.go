// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// Error kinds shared across stages. Configuration and source errors abort a
// run; classification errors are contained per record.
var (
	ErrConfig                  = errors.New("invalid configuration")
	ErrSource                  = errors.New("dataset source failure")
	ErrSourceTransient         = errors.New("dataset source temporarily unavailable")
	ErrClassificationTransient = errors.New("classification temporarily failed")
	ErrClassificationParse     = errors.New("classification response not understood")
)

// ConfigError reports one invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfig) true for every ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// WrapError preserves a typed error kind with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
