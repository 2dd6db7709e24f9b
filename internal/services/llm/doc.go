// Package llm provides chat completion clients for document synthesis.
//
// Two Completer implementations exist: Client speaks the OpenRouter chat
// completions wire format directly, and OpenAIClient wraps the openai-go SDK
// for OpenAI-compatible gateways. Both take the model per call so the
// synthesis package can walk its model hierarchy with a single client.
//
// # Retry Behaviour
//
// Client retries one model on HTTP 408/429/5xx, empty content and network
// timeouts with exponential backoff (base 1s, max 10s). Retries never switch
// models. Context cancellation aborts retries immediately.
//
// # Error Kinds
//
// Classify maps returned errors onto the attempt kinds stored with each
// generation run: timeout, rate_limited, http_status, empty_response,
// malformed_response, canceled and transport.
package llm
