package domain

import "errors"

var (
	// ErrInvalidRequest signals a request rejected before any external call.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingUnavailable signals an embedding capability failure.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrStoreUnavailable signals an unreachable chunk store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrGenerationUnavailable signals an answer-generation capability failure.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrRateLimited signals a rate limit hit at an external capability.
	ErrRateLimited = errors.New("rate limited")
)
