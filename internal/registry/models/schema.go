package models

import "github.com/danielgtaylor/huma/v2"

// Schema describes capabilities as an object of opaque namespace payloads
// rather than the Go struct layout.
func (Capabilities) Schema(huma.Registry) *huma.Schema {
	props := make(map[string]*huma.Schema, len(capabilityNames))
	for _, name := range capabilityNames {
		props[name] = &huma.Schema{Description: "Opaque " + name + " payload"}
	}
	return &huma.Schema{
		Type:                 huma.TypeObject,
		Properties:           props,
		AdditionalProperties: false,
	}
}
