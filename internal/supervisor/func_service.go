package supervisor

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"
)

// FuncService supervises a blocking run loop such as the outbox publisher.
type FuncService struct {
	name string
	run  func(ctx context.Context) error
}

func NewFuncService(name string, run func(ctx context.Context) error) *FuncService {
	return &FuncService{name: name, run: run}
}

// Serve runs the loop. A loop that returns nil before cancellation is done
// for good and is not restarted.
func (f *FuncService) Serve(ctx context.Context) error {
	err := f.run(ctx)
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return err
}

func (f *FuncService) String() string { return f.name }
