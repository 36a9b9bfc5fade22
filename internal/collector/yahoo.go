package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"SwingSentinel/internal/model"
)

// DefaultYahooURL is the Yahoo Finance chart API host.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	BaseURL   string
	Client    *http.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	Now       func() time.Time
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(baseURL, proxyURL string) *YahooFetcher {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	return &YahooFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  newHTTPClient(proxyURL),
		SymbolMap: map[string]string{
			"XAUUSD":  "GC=F",
			"US30USD": "YM=F",
			"US30":    "YM=F",
		},
		Now: time.Now,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// yahooSymbol maps FX pairs to their "=X" ticker unless an explicit mapping exists.
func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	if len(symbol) == 6 && !strings.ContainsAny(symbol, "=^.") {
		return symbol + "=X"
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High  []interface{} `json:"high"`
					Low   []interface{} `json:"low"`
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func at(vals []interface{}, i int) interface{} {
	if i < len(vals) {
		return vals[i]
	}
	return nil
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol, interval, rng string) ([]model.Candle, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]model.Candle, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		h := toFloat(at(quote.High, i))
		l := toFloat(at(quote.Low, i))
		c := toFloat(at(quote.Close, i))
		if h == 0 && l == 0 && c == 0 {
			continue // null bars
		}
		bars = append(bars, model.Candle{Time: time.Unix(ts, 0).UTC(), High: h, Low: l, Close: c})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// FetchLatest returns the newest closed bar. Yahoo has no 4-hour interval,
// so 4H bars are built from hourly bars. The chart API also reports the bar
// still forming; that one is skipped until its period has elapsed.
func (f *YahooFetcher) FetchLatest(ctx context.Context, inst model.Instrument, tf model.Timeframe) (model.Candle, error) {
	var (
		bars []model.Candle
		err  error
	)
	switch tf {
	case model.TimeframeShort:
		bars, err = f.fetchChart(ctx, inst.Symbol, "60m", "5d")
		if err == nil {
			bars = aggregateBuckets(bars, tf.Period())
		}
	case model.TimeframeLong:
		bars, err = f.fetchChart(ctx, inst.Symbol, "1d", "5d")
	default:
		return model.Candle{}, fmt.Errorf("yahoo: unsupported timeframe %s", tf)
	}
	if err != nil {
		return model.Candle{}, err
	}
	c, ok := lastClosed(bars, tf.Period(), f.Now())
	if !ok {
		return model.Candle{}, fmt.Errorf("yahoo: no closed bars for %s", inst.Symbol)
	}
	return c, nil
}

// lastClosed returns the newest bar whose period has ended by now.
func lastClosed(bars []model.Candle, period time.Duration, now time.Time) (model.Candle, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Time.Add(period).After(now) {
			return bars[i], true
		}
	}
	return model.Candle{}, false
}

// aggregateBuckets merges chronologically sorted bars into period-aligned
// buckets (UTC). Each bucket is stamped with its start time.
func aggregateBuckets(bars []model.Candle, period time.Duration) []model.Candle {
	if len(bars) == 0 {
		return nil
	}
	var out []model.Candle
	var cur model.Candle
	started := false

	for _, b := range bars {
		bucket := b.Time.UTC().Truncate(period)
		if !started || !bucket.Equal(cur.Time) {
			if started {
				out = append(out, cur)
			}
			cur = model.Candle{Time: bucket, High: b.High, Low: b.Low, Close: b.Close}
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
	}
	out = append(out, cur)
	return out
}
