// Package api holds the OpenAPI description of the map host.
package api

import _ "embed"

// OpenAPI is api/openapi.yaml, embedded so the binary serves it from any
// working directory.
//
//go:embed openapi.yaml
var OpenAPI []byte
