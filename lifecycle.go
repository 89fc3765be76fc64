package journal

import (
	"context"
	"errors"

	"github.com/dogmatiq/dodeca/logging"
)

// OnAdmission is called by the runtime when e is admitted.
//
// If e is event-sourced it is registered under the persistence ID it
// declares, and its state is restored before OnAdmission() returns. Entities
// that are not event-sourced are ignored.
//
// A *ConfigurationError is returned if e declares an invalid persistence ID.
// It is not recoverable; e must not be admitted again without being fixed.
func (j *Journal) OnAdmission(ctx context.Context, e Entity) error {
	es, ok := e.(EventSourced)
	if !ok {
		return nil
	}

	err := j.Register(ctx, es, es.PersistenceID())

	var cerr *ConfigurationError
	if errors.As(err, &cerr) {
		logging.Log(j.opts.Logger, "unable to admit entity: %s", cerr)
	}

	return err
}

// OnResignation is called by the runtime when the entity with the identity e
// resigns.
//
// Any replay of e's events is stopped and any calls to Emit() that are
// waiting on its stream return ErrCancelled. It is a no-op if e is not
// registered.
func (j *Journal) OnResignation(e Identity) {
	if b, ok := j.registry.Unregister(e); ok {
		logging.Debug(
			j.opts.Logger,
			"entity '%s' resigned from persistence ID '%s'",
			e,
			b.PersistenceID,
		)
	}
}
