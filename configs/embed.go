// Package configs provides embedded configuration templates for bmsync.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they ship inside the binary regardless of install method.
//
// Configuration hierarchy (see internal/config/config.go Load()):
//  1. Hardcoded defaults (internal/config.NewConfig())
//  2. User config (~/.config/basic-memory/config.yaml)
//  3. Project config (.bmconfig.yaml)
//  4. Environment variables (BMSYNC_*)
package configs

import _ "embed"

// UserConfigTemplate is an example of ~/.config/basic-memory/config.yaml,
// embedded in the binary. No command writes it out.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is an example of .bmconfig.yaml at the project
// root, embedded in the binary. `bmsync init` does not use it; it writes
// internal/config.NewConfig()'s defaults instead.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
