package transport

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"

	"github.com/ethstorage/directrequest-cli/pkg/config"
)

// EventClient is the unsigned connection used for logs and block headers. It
// exposes no way to sign or send transactions.
type EventClient interface {
	bind.ContractFilterer
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	Close()
}

// DialEvents opens the subscription connection directly against rawURL,
// bypassing the signing transport. WebSocket and IPC endpoints use native
// subscriptions; HTTP endpoints are polled every pollInterval.
func DialEvents(ctx context.Context, rawURL string, pollInterval time.Duration, logger *log.Logger) (EventClient, error) {
	if rawURL == "" {
		return nil, config.ErrMissingRPCURL
	}

	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial events %s: %w", rawURL, err)
	}

	if isHTTP(rawURL) {
		if logger == nil {
			logger = log.StandardLogger()
		}
		logger.Debugf("events endpoint %s is HTTP, polling every %v", rawURL, pollInterval)
		p := NewPoller(client, pollInterval, logger)
		p.closer = client.Close
		return p, nil
	}
	return client, nil
}

func isHTTP(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
