package feeder

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"arthcore/native/oracle"
	"arthcore/services/arthd/config"
)

const coinGeckoKeyHeader = "x-cg-pro-api-key"

// keyedDoer attaches an API key header to every request.
type keyedDoer struct {
	next   oracle.HTTPDoer
	header string
	key    string
}

func (d keyedDoer) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set(d.header, d.key)
	return d.next.Do(req)
}

// BuildBindings constructs a feed per configuration entry bound to its target
// source in g. caller may be nil when no Chainlink feed is configured.
func BuildBindings(feeds []config.Feed, g *Graph, client oracle.HTTPDoer, caller ethereum.ContractCaller) ([]Binding, error) {
	if client == nil {
		client = http.DefaultClient
	}
	bindings := make([]Binding, 0, len(feeds))
	for _, f := range feeds {
		sink, err := g.Sink(f.Target)
		if err != nil {
			return nil, fmt.Errorf("feed %s: %w", f.Name, err)
		}
		var feed oracle.Feed
		switch f.Type {
		case config.FeedCoinGecko:
			doer := client
			if key := strings.TrimSpace(f.APIKey); key != "" {
				doer = keyedDoer{next: client, header: coinGeckoKeyHeader, key: key}
			}
			feed = oracle.NewCoinGeckoFeed(f.Name, doer, f.Endpoint, f.AssetID, f.VS)
		case config.FeedChainlink:
			if caller == nil {
				return nil, fmt.Errorf("feed %s: chainlink requires an rpc connection", f.Name)
			}
			if !common.IsHexAddress(f.Address) {
				return nil, fmt.Errorf("feed %s: invalid aggregator address %q", f.Name, f.Address)
			}
			feed = oracle.NewChainlinkFeed(f.Name, caller, common.HexToAddress(f.Address))
		default:
			return nil, fmt.Errorf("feed %s: unknown type %q", f.Name, f.Type)
		}
		bindings = append(bindings, Binding{Feed: feed, Target: f.Target, Sink: sink})
	}
	return bindings, nil
}

// NeedsRPC reports whether any feed reads on-chain aggregators.
func NeedsRPC(feeds []config.Feed) bool {
	for _, f := range feeds {
		if f.Type == config.FeedChainlink {
			return true
		}
	}
	return false
}
