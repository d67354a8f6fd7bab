// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import (
	"errors"
	"fmt"
)

var (
	// Registry errors
	ErrNoVariants       = errors.New("at least one variant must be configured")
	ErrEmptyVariantID   = errors.New("variant ID cannot be empty")
	ErrEmptyCounterKey  = errors.New("variant counter key cannot be empty")
	ErrDuplicateVariant = errors.New("duplicate variant")
	ErrUnknownVariant   = errors.New("unknown variant")

	// Tracker errors
	ErrNilConfig       = errors.New("config is nil")
	ErrMissingRedisURL = errors.New("redis URL is not configured")
	ErrStoreConnect    = errors.New("failed to connect to store")
	ErrStoreReset      = errors.New("failed to reset store")
)

func newUnknownVariantError(raw string) error {
	return fmt.Errorf("%w: %s", ErrUnknownVariant, raw)
}

func newDuplicateVariantError(raw string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateVariant, raw)
}

func newStoreConnectError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreConnect, err)
}

func newStoreResetError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreReset, err)
}
