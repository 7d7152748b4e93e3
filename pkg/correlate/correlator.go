package correlate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrEventTimeout = errors.New("timed out waiting for event")

// SubmitFunc sends the transaction expected to cause the correlated events.
type SubmitFunc func(ctx context.Context) (common.Hash, error)

// Correlator pairs a submitted request with the events it triggers. Both
// listeners are armed before the transaction is sent so neither event can be
// missed.
type Correlator struct {
	// Timeout bounds each event wait. Zero waits forever.
	Timeout time.Duration
	Logger  *log.Logger
}

func (c *Correlator) logger() *log.Logger {
	if c.Logger == nil {
		return log.StandardLogger()
	}
	return c.Logger
}

// Submit arms listeners for the requested and fulfilled events on src, then
// calls submit. If arming fails nothing is sent. If submit fails both
// listeners are released.
func (c *Correlator) Submit(ctx context.Context, src Source, requested, fulfilled string, submit SubmitFunc) (*Pending, error) {
	if c.Timeout <= 0 {
		c.logger().Warn("Event wait has no timeout, an unanswered request blocks until interrupted")
	}

	var req, ful *Signal[Record]
	var g errgroup.Group
	g.Go(func() (err error) {
		req, err = Arm(ctx, src, requested)
		return err
	})
	g.Go(func() (err error) {
		ful, err = Arm(ctx, src, fulfilled)
		return err
	})
	if err := g.Wait(); err != nil {
		for _, sig := range []*Signal[Record]{req, ful} {
			if sig != nil {
				sig.Cancel()
			}
		}
		return nil, err
	}

	hash, err := submit(ctx)
	if err != nil {
		req.Cancel()
		ful.Cancel()
		return nil, err
	}

	return &Pending{
		TxHash:    hash,
		Requested: req,
		Fulfilled: ful,
		names:     [2]string{requested, fulfilled},
		timeout:   c.Timeout,
	}, nil
}

// Wait arms a single listener for eventName and blocks for its first
// occurrence.
func (c *Correlator) Wait(ctx context.Context, src Source, eventName string) (Record, error) {
	sig, err := Arm(ctx, src, eventName)
	if err != nil {
		return Record{}, err
	}
	rec, err := waitFor(ctx, sig, eventName, c.Timeout)
	if err != nil {
		sig.Cancel()
	}
	return rec, err
}

// Pending is a submitted request whose events have not been reported yet.
type Pending struct {
	TxHash    common.Hash
	Requested *Signal[Record]
	Fulfilled *Signal[Record]

	names   [2]string
	timeout time.Duration
}

// Await reports the requested event, then the fulfilled event, in that order.
// The first failure cancels whatever is still outstanding.
func (p *Pending) Await(ctx context.Context, report func(Record)) error {
	for i, sig := range []*Signal[Record]{p.Requested, p.Fulfilled} {
		rec, err := waitFor(ctx, sig, p.names[i], p.timeout)
		if err != nil {
			p.Cancel()
			return err
		}
		report(rec)
	}
	return nil
}

// Cancel releases both listeners. Signals that already resolved keep their
// value.
func (p *Pending) Cancel() {
	p.Requested.Cancel()
	p.Fulfilled.Cancel()
}

func waitFor(ctx context.Context, sig *Signal[Record], name string, timeout time.Duration) (Record, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rec, err := sig.Wait(ctx)
	if timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
		return Record{}, fmt.Errorf("%w %s after %s", ErrEventTimeout, name, timeout)
	}
	return rec, err
}
