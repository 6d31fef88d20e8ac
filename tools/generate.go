//go:build tools

// Package tools holds the code generation directives of the module.
package tools

// Regenerate docs/ after changing the @-annotations in internal/api.
//go:generate swag init --dir ../ --generalInfo internal/api/server.go --output ../docs --outputTypes go --parseInternal
