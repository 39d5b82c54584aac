// Package config loads and validates whispersub's TOML configuration.
//
// The file is decoded strictly: unknown keys fail the load. Defaults come from
// Default and are overlaid by the file, then paths are expanded and every
// section is validated. Load searches ./whispersub.toml and the user config
// directory when no explicit path is given, and fails with ErrNotFound when
// nothing exists.
package config
