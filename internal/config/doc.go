// Package config loads and validates the TOML daemon configuration, applying
// repository defaults for anything the file leaves unset.
package config
