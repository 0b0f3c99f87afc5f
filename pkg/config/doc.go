// Package config loads and validates the SetForge settings file.
//
// Settings are plain YAML layered over built-in defaults, so a missing
// or partial file is always usable. Validation happens once at load
// time; the rest of the installer treats Settings as read-only.
package config
