// Package language validates and describes the languages a voice model can
// be trained on.
//
// Only English and Chinese are supported. Codes are compared after case and
// whitespace normalization; anything else, including regional variants such
// as en-US, is rejected so the transcription stage never receives a code it
// cannot handle.
package language
