// Package config loads, normalizes, and validates terport configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and TERPORT_ADMIN_TOKEN. The Config type centralizes every
// knob the daemon and CLI need: knowledge-base endpoints, the model hierarchy,
// the plugin version the generation gate compares against, and the status
// surface credentials.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, a de-duplicated model hierarchy, and clear validation errors.
package config
