// Package config loads, normalizes, and validates stemd's TOML
// configuration. Defaults live in defaults.go, path expansion and value
// cleanup in normalize.go, and usability checks in validate.go. The embedded
// sample_config.toml documents every key and backs 'stemd config init'.
package config
