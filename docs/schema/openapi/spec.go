// Package openapi embeds the OpenAPI description of the wellbore HTTP API.
package openapi

import _ "embed"

// WellboreSpec contains the OpenAPI document for the dashboard endpoints.
//
//go:embed wellbore.yaml
var WellboreSpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), WellboreSpec...)
}
