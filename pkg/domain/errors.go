package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the scheduler. None of these are retried internally;
// retry policy is a caller concern.
var (
	// a referenced asset key cannot be resolved.
	ErrMissingAsset = errors.New("missing asset")

	// a remote fetch failed.
	ErrDownload = errors.New("download failed")

	// the container run failed or exited nonzero.
	ErrExecution = errors.New("container execution failed")

	// copy/hash/link of outputs failed.
	ErrPersistence = errors.New("cannot persist output")

	// the performance file is missing, unparseable, or lacks the "all" key.
	ErrMalformedOutput = errors.New("malformed job output")

	ErrInvalidStatusChange = errors.New("cannot change tuple status")
)

func NewErrMissingAsset(kind AssetKind, key string) error {
	return fmt.Errorf("%w: %s %s", ErrMissingAsset, kind, key)
}

func NewErrInvalidStatusChange(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, from, to)
}
