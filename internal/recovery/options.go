package recovery

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PersistOptions configures how a write failure is reported.
type PersistOptions struct {
	OnError func(error)
	// Silent suppresses the warning log; OnError still runs.
	Silent bool
}

func (o PersistOptions) report(err error, fields logrus.Fields) {
	if o.OnError != nil {
		o.OnError(err)
	}
	if !o.Silent {
		logrus.WithFields(fields).WithError(err).Warn("recovery state write failed")
	}
}

// LoadOptions configures a best-effort read.
type LoadOptions[T any] struct {
	// Default is returned when the read fails or finds nothing.
	Default T
	OnError func(error)
	Silent  bool
}

// LoadWith runs load and degrades any failure to opts.Default. A missing
// state is not reported as an error. The bool is false when Default was used.
func LoadWith[T any](ctx context.Context, load func(context.Context) (T, error), opts LoadOptions[T]) (T, bool) {
	v, err := load(ctx)
	if err == nil {
		return v, true
	}
	if errors.Is(err, ErrNoState) {
		return opts.Default, false
	}
	if opts.OnError != nil {
		opts.OnError(err)
	}
	if !opts.Silent {
		logrus.WithError(err).Warn("recovery state read failed, starting fresh")
	}
	return opts.Default, false
}
