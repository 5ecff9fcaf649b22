// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// QueryParam is one named, typed parameter bound to a query.
type QueryParam struct {
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type" yaml:"type"`
	Value any    `json:"value" yaml:"value"`
}

// Query is a parameterized SQL statement ready for a row source.
type Query struct {
	Text   string       `json:"text" yaml:"text"`
	Params []QueryParam `json:"params" yaml:"params"`
}

// Param returns the value bound to name, or nil.
func (q Query) Param(name string) any {
	for _, p := range q.Params {
		if p.Name == name {
			return p.Value
		}
	}
	return nil
}
