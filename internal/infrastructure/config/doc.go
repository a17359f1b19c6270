// Package config loads and validates ecoSYNC Core configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides. Loading order:
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variables (ECOSYNC_SECTION_KEY)
//
// The connection section selects the link type (serial or tcp) and the
// request timeout/retry policy; the polling section holds the refresh
// intervals and the notification deadband. Both are policy, not
// behavior: the engine reads them once at startup.
//
// Validate() is called by Load() and rejects configurations that could
// not possibly work (missing device path, zero timeout, weak JWT secret
// while the API is enabled).
package config
