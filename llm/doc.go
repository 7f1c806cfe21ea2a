// Package llm provides a provider-agnostic chat-completion client.
//
// A Client routes requests to registered ProviderAdapter implementations
// (an OpenAI-compatible HTTP backend and a gollm-backed fallback) and
// applies optional middleware. Both blocking and streaming calls return a
// complete Response; the streaming variant additionally invokes a callback
// per content delta.
package llm
