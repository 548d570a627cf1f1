// Package openapi REST APIのOpenAPI仕様を埋め込んで提供する
package openapi

import _ "embed"

// Spec OpenAPI 3.0仕様（YAML）
//
//go:embed openapi.yaml
var Spec []byte
