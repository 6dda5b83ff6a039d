package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// CoinGeckoFeed adapts the public CoinGecko simple price API.
type CoinGeckoFeed struct {
	id       string
	client   HTTPDoer
	endpoint string
	assetID  string
	vs       string
	now      func() time.Time
}

// NewCoinGeckoFeed constructs a feed for assetID quoted in vs (e.g. "ethereum"
// in "usd").
func NewCoinGeckoFeed(id string, client HTTPDoer, endpoint, assetID, vs string) *CoinGeckoFeed {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &CoinGeckoFeed{
		id:       normaliseID(id),
		client:   client,
		endpoint: ep,
		assetID:  strings.ToLower(strings.TrimSpace(assetID)),
		vs:       strings.ToLower(strings.TrimSpace(vs)),
		now:      time.Now,
	}
}

func (f *CoinGeckoFeed) ID() string { return f.id }

func (f *CoinGeckoFeed) Fetch(ctx context.Context) (Observation, error) {
	if f.assetID == "" || f.vs == "" {
		return Observation{}, fmt.Errorf("coingecko feed %s: asset and quote currency required", f.id)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Observation{}, err
	}
	values := url.Values{}
	values.Set("ids", f.assetID)
	values.Set("vs_currencies", f.vs)
	values.Set("include_last_updated_at", "true")
	values.Set("precision", "full")
	req.URL.RawQuery = values.Encode()
	resp, err := f.client.Do(req)
	if err != nil {
		return Observation{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Observation{}, fmt.Errorf("coingecko feed %s: status %d: %s", f.id, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return Observation{}, fmt.Errorf("coingecko feed %s: decode: %w", f.id, err)
	}
	entry, ok := payload[f.assetID]
	if !ok {
		return Observation{}, fmt.Errorf("coingecko feed %s: quote missing for %s", f.id, f.assetID)
	}
	raw, ok := entry[f.vs]
	if !ok {
		return Observation{}, fmt.Errorf("coingecko feed %s: empty price", f.id)
	}
	price, err := parseDecimalPrice(raw.String())
	if err != nil {
		return Observation{}, fmt.Errorf("coingecko feed %s: %w", f.id, err)
	}
	ts := f.now().UTC()
	if rawTs, exists := entry["last_updated_at"]; exists {
		if parsed, err := rawTs.Int64(); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0).UTC()
		}
	}
	return Observation{FeedID: f.id, Price: price, ObservedAt: ts}, nil
}

// parseDecimalPrice converts a decimal string such as "1834.215" into a six
// decimal integer, truncating extra precision.
func parseDecimalPrice(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("invalid rate %q", raw)
	}
	if strings.ContainsAny(trimmed, "eE") {
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate %q", raw)
		}
		trimmed = strconv.FormatFloat(f, 'f', 6, 64)
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if len(frac) > 6 {
		frac = frac[:6]
	}
	frac += strings.Repeat("0", 6-len(frac))
	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return nil, fmt.Errorf("invalid rate %q", raw)
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q", raw)
	}
	return v, nil
}
