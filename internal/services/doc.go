// Package services defines shared utilities consumed by the pipeline stages
// and the orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, and model names for
//     logging.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     translate failures into process exit codes.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
