// Package source defines the contract for upstream event listing
// providers and the adapters that implement it.
//
// Every adapter normalizes its provider's payload into
// model.NormalizedEvent; items missing required fields are skipped
// rather than fabricated. Adapters share one REST client with
// retries, backoff, and per-provider rate limiting.
package source
