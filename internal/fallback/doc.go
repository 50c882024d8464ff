// Package fallback substitutes the separation stage's vocal track when the
// stage could not produce it.
//
// Resolve transcodes the raw source recording with ffmpeg into the expected
// artifact location (16-bit PCM WAV at a fixed sample rate and channel count)
// and reports whether a substitute was applied. Without a raw source the
// situation is unrecoverable. SelectSource and Promote reproduce how the
// separation tooling picks its input and names its output.
package fallback
