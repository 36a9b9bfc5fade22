package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SwingSentinel/internal/model"
)

// DefaultScannerURL is the public TradingView scanner endpoint.
const DefaultScannerURL = "https://scanner.tradingview.com"

// TradingViewFetcher reads the current bar's high/low/close from the
// TradingView scanner, routed by screener and exchange.
//
// The scanner reports no bar time, so the bar identity is the start of the
// timeframe bucket that contains the fetch instant. Values are those of the
// forming bar and are only final when fetched at bar close.
type TradingViewFetcher struct {
	BaseURL string
	Client  *http.Client
	Now     func() time.Time
}

// NewTradingViewFetcher creates a fetcher with optional proxy support.
func NewTradingViewFetcher(baseURL, proxyURL string) *TradingViewFetcher {
	if baseURL == "" {
		baseURL = DefaultScannerURL
	}
	return &TradingViewFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  newHTTPClient(proxyURL),
		Now:     time.Now,
	}
}

func (f *TradingViewFetcher) Name() string { return "tradingview" }

type scanRequest struct {
	Symbols struct {
		Tickers []string `json:"tickers"`
		Query   struct {
			Types []string `json:"types"`
		} `json:"query"`
	} `json:"symbols"`
	Columns []string `json:"columns"`
}

type scanResponse struct {
	TotalCount int `json:"totalCount"`
	Data       []struct {
		S string     `json:"s"`
		D []*float64 `json:"d"`
	} `json:"data"`
}

// scanColumns returns the high/low/close column names for tf.
func scanColumns(tf model.Timeframe) []string {
	suffix := ""
	if tf == model.TimeframeShort {
		suffix = "|240"
	}
	return []string{"high" + suffix, "low" + suffix, "close" + suffix}
}

// BarTime returns the start of the tf bucket containing t, in UTC.
func BarTime(t time.Time, tf model.Timeframe) time.Time {
	return t.UTC().Truncate(tf.Period())
}

func (f *TradingViewFetcher) FetchLatest(ctx context.Context, inst model.Instrument, tf model.Timeframe) (model.Candle, error) {
	ticker := strings.ToUpper(inst.Exchange + ":" + inst.Symbol)

	var reqBody scanRequest
	reqBody.Symbols.Tickers = []string{ticker}
	reqBody.Symbols.Query.Types = []string{}
	reqBody.Columns = scanColumns(tf)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return model.Candle{}, fmt.Errorf("marshal scan request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/scan", f.BaseURL, url.PathEscape(strings.ToLower(inst.Screener)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return model.Candle{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0")

	fetchedAt := f.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		return model.Candle{}, fmt.Errorf("scan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return model.Candle{}, fmt.Errorf("scan: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return model.Candle{}, fmt.Errorf("decode scan response: %w", err)
	}
	for _, row := range result.Data {
		if !strings.EqualFold(row.S, ticker) {
			continue
		}
		if len(row.D) < 3 || row.D[0] == nil || row.D[1] == nil || row.D[2] == nil {
			return model.Candle{}, fmt.Errorf("scan: incomplete row for %s", ticker)
		}
		return model.Candle{
			Time:  BarTime(fetchedAt, tf),
			High:  *row.D[0],
			Low:   *row.D[1],
			Close: *row.D[2],
		}, nil
	}
	return model.Candle{}, fmt.Errorf("scan: %s not found", ticker)
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}
