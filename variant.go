// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Filipe Johansson

package gopulse

import "fmt"

// Variant identifies one tracked product surface. The set of valid variants
// is closed: it is fixed by the Registry at startup and raw strings coming
// from the outside are resolved (and rejected) at the boundary.
type Variant string

// VariantConfig describes a single tracked variant.
type VariantConfig struct {
	ID         Variant `json:"id"`
	Name       string  `json:"name"`
	CounterKey string  `json:"counter_key"` // store key holding the active-connection counter
}

// Registry is the immutable, ordered set of tracked variants. It is built
// once from configuration and shared by every component so that all of them
// agree on which variants exist and which store keys they map to.
type Registry struct {
	order []Variant
	byID  map[Variant]VariantConfig
}

// NewRegistry builds a Registry from the given variant configurations.
// It returns an error if the list is empty, if a variant ID or counter key
// is missing, or if the same ID appears twice.
func NewRegistry(configs []VariantConfig) (*Registry, error) {
	if len(configs) == 0 {
		return nil, ErrNoVariants
	}

	r := &Registry{
		order: make([]Variant, 0, len(configs)),
		byID:  make(map[Variant]VariantConfig, len(configs)),
	}

	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, ErrEmptyVariantID
		}
		if cfg.CounterKey == "" {
			return nil, fmt.Errorf("variant %s: %w", cfg.ID, ErrEmptyCounterKey)
		}
		if _, exists := r.byID[cfg.ID]; exists {
			return nil, newDuplicateVariantError(string(cfg.ID))
		}

		r.order = append(r.order, cfg.ID)
		r.byID[cfg.ID] = cfg
	}

	return r, nil
}

// Resolve maps a raw string to a registered Variant. Unknown values are
// rejected here so the rest of the engine never sees an unchecked variant.
func (r *Registry) Resolve(raw string) (Variant, error) {
	v := Variant(raw)
	if _, exists := r.byID[v]; !exists {
		return "", newUnknownVariantError(raw)
	}
	return v, nil
}

// Has reports whether the given variant is registered.
func (r *Registry) Has(v Variant) bool {
	_, exists := r.byID[v]
	return exists
}

// Variants returns the registered variants in configuration order.
// The returned slice is a copy.
func (r *Registry) Variants() []Variant {
	out := make([]Variant, len(r.order))
	copy(out, r.order)
	return out
}

// CounterKey returns the store key of the variant's active counter.
func (r *Registry) CounterKey(v Variant) string {
	return r.byID[v].CounterKey
}

// Name returns the human-readable name of the variant, or the raw ID if no
// name was configured.
func (r *Registry) Name(v Variant) string {
	cfg, exists := r.byID[v]
	if !exists || cfg.Name == "" {
		return string(v)
	}
	return cfg.Name
}

// Len returns the number of registered variants.
func (r *Registry) Len() int {
	return len(r.order)
}
