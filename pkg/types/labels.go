// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// CoatingType is a can-coating chemistry label. Output values are exactly the
// strings below.
type CoatingType string

const (
	CoatingEpoxyBPA     CoatingType = "Epoxy (BPA)"
	CoatingEpoxyBPF     CoatingType = "Epoxy (BPF)"
	CoatingPolyester    CoatingType = "Polyester"
	CoatingAcrylic      CoatingType = "Acrylic"
	CoatingPVC          CoatingType = "PVC"
	CoatingPolyolefin   CoatingType = "Polyolefin"
	CoatingOleoresin    CoatingType = "Oleoresin/Phenolic"
	CoatingHybrid       CoatingType = "Hybrid"
	CoatingBPAFreeOther CoatingType = "BPA-Free (Unspecified)"

	// Unclassified marks a failed or unparseable classification. It is never
	// written as a label value.
	Unclassified CoatingType = "unclassified"
)

// CoatingLabels is the fixed label set in prompt order.
var CoatingLabels = []CoatingType{
	CoatingEpoxyBPA,
	CoatingEpoxyBPF,
	CoatingPolyester,
	CoatingAcrylic,
	CoatingPVC,
	CoatingPolyolefin,
	CoatingOleoresin,
	CoatingHybrid,
	CoatingBPAFreeOther,
}

// Valid reports whether c is one of the nine labels.
func (c CoatingType) Valid() bool {
	for _, l := range CoatingLabels {
		if c == l {
			return true
		}
	}
	return false
}

// Bisphenol reports whether the label is a bisphenol-based epoxy.
func (c CoatingType) Bisphenol() bool {
	return c == CoatingEpoxyBPA || c == CoatingEpoxyBPF
}

// Era is the derived temporal chemistry bucket.
type Era string

const (
	EraPreBPA Era = "pre-BPA"
	EraBPA    Era = "BPA-era"
	EraModern Era = "modern"
)
