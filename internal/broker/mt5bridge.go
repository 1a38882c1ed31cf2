package broker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/models"
	"github.com/jbaeza/cyclebot/internal/util"
)

// symbolInfoTTL bounds how long instrument metadata (lot limits, step) is
// served from cache before the bridge is asked again.
const symbolInfoTTL = 60 * time.Second

// SymbolInfo is the instrument metadata the bridge exposes per symbol.
type SymbolInfo struct {
	Name       string  `json:"name"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
	Digits     int     `json:"digits"`
}

type cachedInfo struct {
	info    SymbolInfo
	fetched time.Time
}

// BridgeClient talks JSON/REST to an MT5 gateway process that proxies the
// terminal API. It normalises order volumes against the instrument's lot
// limits before dispatch.
type BridgeClient struct {
	http *resty.Client
	log  *logrus.Logger

	mu    sync.Mutex
	cache map[string]cachedInfo
	now   func() time.Time
}

// BridgeConfig configures the gateway connection.
type BridgeConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewBridgeClient creates a gateway client. A zero timeout defaults to 15s.
func NewBridgeClient(cfg BridgeConfig, log *logrus.Logger) *BridgeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &BridgeClient{
		http:  httpClient,
		log:   log,
		cache: make(map[string]cachedInfo),
		now:   time.Now,
	}
}

var _ Broker = (*BridgeClient)(nil)

// Connect verifies the gateway session is up and logged in to the terminal.
func (c *BridgeClient) Connect(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/connect")
	if err != nil {
		return &ConnectionError{Op: "connect", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &ConnectionError{Op: "connect", Err: &APIError{Status: resp.StatusCode(), Message: resp.String()}}
	}
	return nil
}

type ohlcvResponse struct {
	Bars []models.Bar `json:"bars"`
}

// GetOHLCV fetches bars for [start, end] at the given timeframe. W1 and MN1
// are accepted here since the gateway understands them, even though the
// resampler never requests them.
func (c *BridgeClient) GetOHLCV(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (*models.Series, error) {
	if !timeframe.IsValid() && timeframe != models.TimeframeW1 && timeframe != models.TimeframeMN1 {
		return nil, &DataError{Symbol: symbol, Err: fmt.Errorf("unsupported timeframe %q", timeframe)}
	}

	var result ohlcvResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"timeframe": timeframe.String(),
			"from":      start.UTC().Format(time.RFC3339),
			"to":        end.UTC().Format(time.RFC3339),
		}).
		SetResult(&result).
		Get("/ohlcv")
	if err != nil {
		return nil, &ConnectionError{Op: "ohlcv", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &DataError{Symbol: symbol, Err: &APIError{Status: resp.StatusCode(), Message: resp.String()}}
	}
	if len(result.Bars) == 0 {
		return nil, &DataError{Symbol: symbol, Err: ErrNoData}
	}

	return &models.Series{Symbol: symbol, Timeframe: timeframe, Bars: result.Bars}, nil
}

// SendMarketOrder dispatches a market order, clamping the volume to the
// instrument's lot limits first. A gateway-side rejection comes back as a
// failed OrderResult; only transport and protocol faults are errors.
func (c *BridgeClient) SendMarketOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	switch req.Kind {
	case models.OrderBuy, models.OrderSell, models.OrderClose:
	default:
		return nil, fmt.Errorf("invalid order kind %q", req.Kind)
	}

	if req.Kind != models.OrderClose {
		info, err := c.symbolInfo(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		clamped := util.ClampVolume(req.Volume, info.VolumeMin, info.VolumeMax, info.VolumeStep)
		if clamped != req.Volume {
			c.log.WithFields(logrus.Fields{
				"symbol": req.Symbol, "requested": req.Volume, "clamped": clamped,
			}).Warn("order volume adjusted to instrument lot limits")
			req.Volume = clamped
		}
	}

	var result models.OrderResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return nil, &ConnectionError{Op: "send order", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return &result, nil
}

// GetOpenPositions returns the gateway's authoritative open-position list.
func (c *BridgeClient) GetOpenPositions(ctx context.Context) ([]models.Position, error) {
	var result []models.Position
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/positions")
	if err != nil {
		return nil, &ConnectionError{Op: "positions", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return result, nil
}

// GetClosedTrades returns closed round trips paired from the terminal's deal
// history. Gateways without deal-history support answer 501.
func (c *BridgeClient) GetClosedTrades(ctx context.Context) ([]models.TradeRecord, error) {
	var result []models.TradeRecord
	resp, err := c.http.R().SetContext(ctx).SetResult(&result).Get("/trades/closed")
	if err != nil {
		return nil, &ConnectionError{Op: "closed trades", Err: err}
	}
	if resp.StatusCode() == http.StatusNotImplemented {
		return nil, ErrUnsupported
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode(), Message: resp.String()}
	}
	return result, nil
}

// symbolInfo returns instrument metadata, served from a short-lived cache so
// every order in a cycle does not re-query the gateway.
func (c *BridgeClient) symbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && c.now().Sub(entry.fetched) < symbolInfoTTL {
		c.mu.Unlock()
		return entry.info, nil
	}
	c.mu.Unlock()

	var info SymbolInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&info).Get("/symbols/" + symbol)
	if err != nil {
		return SymbolInfo{}, &ConnectionError{Op: "symbol info", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return SymbolInfo{}, &DataError{Symbol: symbol, Err: &APIError{Status: resp.StatusCode(), Message: resp.String()}}
	}

	c.mu.Lock()
	c.cache[symbol] = cachedInfo{info: info, fetched: c.now()}
	c.mu.Unlock()
	return info, nil
}
