package knowledge

import (
	"context"
	"errors"
)

// Sentinel errors for the retrieval pipeline. They are classified into
// FailureKind values at the facade boundary and never propagate to
// callers as raw errors.
var (
	// ErrProviderUnavailable indicates the embedding or generation
	// provider could not be reached or returned an unusable response.
	ErrProviderUnavailable = errors.New("knowledge: provider unavailable")

	// ErrStoreUnavailable indicates the backing database rejected or
	// timed out a query.
	ErrStoreUnavailable = errors.New("knowledge: store unavailable")

	// ErrNavigationExhausted indicates a structural walk hit its depth
	// or step bound without reaching usable content.
	ErrNavigationExhausted = errors.New("knowledge: navigation exhausted")

	// ErrInvalidMode indicates an unknown retrieval mode was requested.
	ErrInvalidMode = errors.New("knowledge: invalid retrieval mode")

	// ErrEmptyCorpus indicates the queried corpus contains no entries.
	ErrEmptyCorpus = errors.New("knowledge: empty corpus")
)

// FailureKind names a failure class in QueryResult.
type FailureKind string

const (
	FailProviderUnavailable FailureKind = "provider_unavailable"
	FailStoreUnavailable    FailureKind = "store_unavailable"
	FailNavigationExhausted FailureKind = "navigation_exhausted"
	FailInvalidMode         FailureKind = "invalid_mode"
	FailEmptyCorpus         FailureKind = "empty_corpus"
	FailInternal            FailureKind = "internal"
)

// Classify maps an error to its FailureKind. Context cancellation on
// the provider path is treated as a provider failure so callers see a
// stable taxonomy instead of transport details.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrInvalidMode):
		return FailInvalidMode
	case errors.Is(err, ErrEmptyCorpus):
		return FailEmptyCorpus
	case errors.Is(err, ErrNavigationExhausted):
		return FailNavigationExhausted
	case errors.Is(err, ErrStoreUnavailable):
		return FailStoreUnavailable
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return FailProviderUnavailable
	default:
		return FailInternal
	}
}
