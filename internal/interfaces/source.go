package interfaces

import "context"

// SignalSource is a restartable signal producer. Run blocks until ctx is
// cancelled; feed failures are retried internally and never returned as
// fatal errors.
type SignalSource interface {
	Name() string
	Run(ctx context.Context) error
}
