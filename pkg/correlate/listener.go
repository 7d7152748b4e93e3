package correlate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

var ErrSubscriptionClosed = errors.New("subscription closed before the event arrived")

// Source is an event-only contract binding. *bind.BoundContract implements it.
type Source interface {
	WatchLogs(opts *bind.WatchOpts, name string, query ...[]interface{}) (chan types.Log, event.Subscription, error)
	UnpackLogIntoMap(out map[string]interface{}, event string, log types.Log) error
}

// Record is the normalised form of one observed event.
type Record struct {
	Event        string                 `json:"event"`
	BlockNumber  uint64                 `json:"blockNumber"`
	TxHash       common.Hash            `json:"transactionHash"`
	ReturnValues map[string]interface{} `json:"returnValues"`
}

// Arm subscribes to eventName and returns a signal resolved by the first
// matching log that was not removed by a reorg. The subscription is active when Arm returns and is dropped
// after that first log.
func Arm(ctx context.Context, src Source, eventName string) (*Signal[Record], error) {
	logs, sub, err := src.WatchLogs(&bind.WatchOpts{Context: ctx}, eventName)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", eventName, err)
	}

	sig := NewSignal[Record](sub.Unsubscribe)
	go func() {
		defer sub.Unsubscribe()

		for {
			select {
			case l := <-logs:
				// Logs dropped by a reorg are redelivered with Removed set.
				if l.Removed {
					continue
				}
				values := make(map[string]interface{})
				if err := src.UnpackLogIntoMap(values, eventName, l); err != nil {
					sig.Fail(fmt.Errorf("unpack %s: %w", eventName, err))
					return
				}
				sig.Resolve(Record{
					Event:        eventName,
					BlockNumber:  l.BlockNumber,
					TxHash:       l.TxHash,
					ReturnValues: values,
				})
			case err := <-sub.Err():
				if err == nil {
					err = ErrSubscriptionClosed
				}
				sig.Fail(fmt.Errorf("%s: %w", eventName, err))
			case <-sig.Done():
			}
			return
		}
	}()

	return sig, nil
}
