package plugin

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/sweeper/pkg/resource"
)

// DryRun lists through the wrapped directory but never deletes.
type DryRun struct {
	Directory
}

// NewDryRun wraps d.
func NewDryRun(d Directory) *DryRun {
	return &DryRun{Directory: d}
}

// Name returns the wrapped name with a dry-run marker.
func (d *DryRun) Name() string {
	return d.Directory.Name() + "+dry-run"
}

// ListGroups delegates to the wrapped directory.
func (d *DryRun) ListGroups(ctx context.Context, pred Predicate) ([]resource.ResourceGroup, error) {
	return d.Directory.ListGroups(ctx, pred)
}

// DeleteGroup logs what would be deleted and reports immediate success.
func (d *DryRun) DeleteGroup(_ context.Context, name string) (*Deletion, error) {
	log.Info().Str("resource_group", name).Msg("dry run: skipping delete")
	return CompletedDeletion(name, nil), nil
}
