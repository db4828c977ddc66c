// Package plugin defines the resource directory interface for Sweeper.
package plugin

import (
	"context"
	"errors"

	"github.com/yairfalse/sweeper/pkg/resource"
)

var (
	// ErrDirectoryUnavailable wraps any failure of the listing call.
	ErrDirectoryUnavailable = errors.New("resource directory unavailable")

	// ErrDeleteFailed wraps a delete the provider rejected.
	ErrDeleteFailed = errors.New("resource group delete failed")
)

// Predicate selects resource groups from a listing.
type Predicate func(resource.ResourceGroup) bool

// Directory lists and deletes resource groups in one subscription.
type Directory interface {
	// Name returns the directory identifier (e.g., "azure", "memory").
	Name() string

	// ListGroups takes a single snapshot of all resource groups and returns
	// those matching pred. Failures wrap ErrDirectoryUnavailable.
	ListGroups(ctx context.Context, pred Predicate) ([]resource.ResourceGroup, error)

	// DeleteGroup issues a delete and returns without waiting for it to finish.
	// A synchronous rejection wraps ErrDeleteFailed.
	DeleteGroup(ctx context.Context, name string) (*Deletion, error)
}

// Filter applies pred to groups. A nil pred keeps everything.
func Filter(groups []resource.ResourceGroup, pred Predicate) []resource.ResourceGroup {
	if pred == nil {
		return groups
	}
	out := make([]resource.ResourceGroup, 0, len(groups))
	for _, g := range groups {
		if pred(g) {
			out = append(out, g)
		}
	}
	return out
}
