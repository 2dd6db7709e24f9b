// Package research gathers evidence for a topic from federated knowledge
// bases.
//
// Client speaks two request shapes: SPARQL SELECT over form-encoded POST with
// application/sparql-results+json answers, and a natural-language ask_url
// that takes {"question": ...} and answers {"facts": [...]}. Endpoints
// without an ask_url get a keyword SPARQL query built from the question, so
// every natural-language call is still exactly one HTTP request.
//
// Aggregator fans calls out concurrently with a per-call timeout and joins on
// all of them. A failing endpoint only shrinks the evidence; it is recorded
// in AggregationResult.EndpointErrors and never aborts the topic.
package research
