package plugin

import (
	"context"
	"time"
)

// Deletion is a handle on an issued delete whose completion runs in the background.
type Deletion struct {
	Name     string
	IssuedAt time.Time

	done chan struct{}
	err  error
}

// StartDeletion runs wait in a new goroutine and returns its handle.
// wait gets a context that outlives ctx's cancellation; the provider
// operation keeps going after a pass returns.
func StartDeletion(ctx context.Context, name string, wait func(context.Context) error) *Deletion {
	d := &Deletion{
		Name:     name,
		IssuedAt: time.Now(),
		done:     make(chan struct{}),
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(d.done)
		d.err = wait(bg)
	}()

	return d
}

// CompletedDeletion returns a handle that is already done with err.
func CompletedDeletion(name string, err error) *Deletion {
	d := &Deletion{
		Name:     name,
		IssuedAt: time.Now(),
		done:     make(chan struct{}),
		err:      err,
	}
	close(d.done)
	return d
}

// Done is closed once the delete has finished.
func (d *Deletion) Done() <-chan struct{} {
	return d.done
}

// Err returns the completion error. Only meaningful after Done is closed.
func (d *Deletion) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the delete finishes or ctx is done.
func (d *Deletion) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
