package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, queues, and sinks return
// these (optionally wrapped) so services and workers can classify outcomes
// without depending on driver error types.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrDuplicate: conditional insert lost to an existing entry
// - ErrUnavailable: service or resource temporarily unavailable
// - ErrInvalidInput: payload failed boundary validation
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrUnavailable  = errors.New("unavailable")
	ErrInvalidInput = errors.New("invalid input")
)
