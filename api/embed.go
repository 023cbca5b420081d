// Package api embeds the OpenAPI document describing the HTTP surface.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document in YAML.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
