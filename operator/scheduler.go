package operator

import (
	"context"
	"errors"
)

// Scheduler decides where host method invocations run. The default
// pass-through scheduler runs them inline on the dispatching goroutine;
// the affinity scheduler marshals them onto a single captured goroutine
// for hosts whose operator state is confined to one thread (UI shells).
// fn receives the context it must propagate into the host call.
type Scheduler interface {
	Invoke(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)
}

// PassThrough returns the inline scheduler.
func PassThrough() Scheduler { return passThrough{} }

type passThrough struct{}

func (passThrough) Invoke(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	return fn(ctx)
}

type affinityKey struct{}

// ErrSchedulerClosed is returned for invocations submitted after the
// affinity scheduler shut down.
var ErrSchedulerClosed = errors.New("operator: affinity scheduler closed")

// AffinityScheduler owns one goroutine and runs every invocation on it.
// Reentrant invocations — host methods that trigger further invocations
// while running on the affinity goroutine — carry a context marker and
// execute inline to avoid deadlocking against the queue.
type AffinityScheduler struct {
	work chan affinityJob
	done chan struct{}
}

type affinityJob struct {
	ctx   context.Context
	fn    func(ctx context.Context) (any, error)
	reply chan affinityReply
}

type affinityReply struct {
	value any
	err   error
}

// NewAffinityScheduler starts the affinity goroutine.
func NewAffinityScheduler() *AffinityScheduler {
	s := &AffinityScheduler{
		work: make(chan affinityJob),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AffinityScheduler) run() {
	for job := range s.work {
		if job.fn == nil {
			break // stop marker sent by Close
		}
		value, err := job.fn(job.ctx)
		job.reply <- affinityReply{value: value, err: err}
	}
	close(s.done)
}

// Invoke runs fn on the affinity goroutine, or inline when ctx carries
// the affinity marker (reentrant call already on that goroutine).
func (s *AffinityScheduler) Invoke(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if ctx.Value(affinityKey{}) != nil {
		return fn(ctx)
	}
	job := affinityJob{
		ctx:   context.WithValue(ctx, affinityKey{}, true),
		fn:    fn,
		reply: make(chan affinityReply, 1),
	}
	select {
	case s.work <- job:
	case <-s.done:
		return nil, ErrSchedulerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-job.reply:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the affinity goroutine. Queued invocations complete;
// later ones fail with ErrSchedulerClosed.
func (s *AffinityScheduler) Close() {
	select {
	case s.work <- affinityJob{}:
	case <-s.done:
	}
}

var _ Scheduler = (*AffinityScheduler)(nil)
var _ Scheduler = passThrough{}
