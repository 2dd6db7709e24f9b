// Package synthesis turns a topic and its aggregated research into a markdown
// document by walking an ordered model hierarchy.
//
// Attempts are strictly sequential: the first model is tried, and any
// transport failure, rate limit, empty reply, or body that fails markdown
// validation is recorded as a failed ModelAttempt before the next model is
// tried. The first well-formed body wins. When every model fails, Synthesize
// returns an *ExhaustedError carrying the complete attempt list; it matches
// ErrAllModelsExhausted with errors.Is.
//
// The prompt embeds at most MaxFacts facts, highest confidence first. When no
// facts were gathered the prompt omits the facts section entirely and tells
// the model not to cite knowledge-base sources.
package synthesis
