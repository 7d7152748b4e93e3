package transport

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	log "github.com/sirupsen/logrus"
)

// PollSource is the subset of *ethclient.Client the Poller reads from.
type PollSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Poller emulates log and head subscriptions over a transport without
// notification support. Each subscription starts at the block after the head
// seen when it was created.
type Poller struct {
	source   PollSource
	interval time.Duration
	logger   *log.Logger
	closer   func()
}

func NewPoller(source PollSource, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Poller{source: source, interval: interval, logger: logger}
}

func (p *Poller) Close() {
	if p.closer != nil {
		p.closer()
	}
}

func (p *Poller) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return p.source.FilterLogs(ctx, q)
}

func (p *Poller) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	next, err := p.startBlock(ctx, q.FromBlock)
	if err != nil {
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			latest, err := p.source.BlockNumber(ctx)
			if err != nil {
				p.logger.Debugf("poll block number: %v", err)
				continue
			}
			if latest < next {
				continue
			}

			query := q
			query.FromBlock = new(big.Int).SetUint64(next)
			query.ToBlock = new(big.Int).SetUint64(latest)
			logs, err := p.source.FilterLogs(ctx, query)
			if err != nil {
				p.logger.Debugf("poll logs %d-%d: %v", next, latest, err)
				continue
			}

			for _, l := range logs {
				select {
				case ch <- l:
				case <-quit:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			next = latest + 1
		}
	}), nil
}

func (p *Poller) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	next, err := p.startBlock(ctx, nil)
	if err != nil {
		return nil, err
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}

			latest, err := p.source.BlockNumber(ctx)
			if err != nil {
				p.logger.Debugf("poll block number: %v", err)
				continue
			}

			for ; next <= latest; next++ {
				header, err := p.source.HeaderByNumber(ctx, new(big.Int).SetUint64(next))
				if err != nil {
					p.logger.Debugf("poll header %d: %v", next, err)
					break
				}
				select {
				case ch <- header:
				case <-quit:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}), nil
}

func (p *Poller) startBlock(ctx context.Context, from *big.Int) (uint64, error) {
	if from != nil {
		return from.Uint64(), nil
	}
	head, err := p.source.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return head + 1, nil
}
