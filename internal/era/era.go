// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package era buckets a classified publication into a coating chemistry era.
package era

import "github.com/pdiddy/coating-patents/pkg/types"

// Derive returns the era for a publication year and coating label.
// Bisphenol epoxies published before threshold are pre-BPA, at or after it
// BPA-era; every other label is modern. Unclassified or unknown labels have
// no era and ok is false.
func Derive(year int, label types.CoatingType, threshold int) (types.Era, bool) {
	if !label.Valid() {
		return "", false
	}
	if !label.Bisphenol() {
		return types.EraModern, true
	}
	if year < threshold {
		return types.EraPreBPA, true
	}
	return types.EraBPA, true
}
