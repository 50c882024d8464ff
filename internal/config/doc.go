// Package config loads, normalizes, and validates voxclone configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VC_LANG, VC_ROLE and VC_AUDIO. The Config type centralizes the directory
// layout, the command line for each of the six pipeline stages, the Python
// interpreter, and the ffmpeg fallback settings so the CLI discovers
// everything in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
