package derivclient

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"binarylab/internal/domain"
	"binarylab/internal/ports"
)

const defaultEndpoint = "wss://ws.derivws.com/websockets/v3"

// Client implements the ports.MarketFeed interface against the Deriv
// WebSocket API (v3). Synthetic indices like R_75 stream one quote per
// second with no volume or trade side.
type Client struct {
	url                  string
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Deriv feed adapter.
type Config struct {
	AppID                string // Deriv application ID, required
	Endpoint             string // WebSocket endpoint, defaults to the public one
	Logger               ports.Logger
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// New creates a new Deriv feed adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Deriv client")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("%w: Deriv AppID is required", ports.ErrConfigurationError)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		url:                  fmt.Sprintf("%s?app_id=%s", endpoint, cfg.AppID),
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// --- Wire Types ---

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tickMsg struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Epoch  float64 `json:"epoch"` // Seconds since epoch
	Quote  float64 `json:"quote"`
}

type candleMsg struct {
	Epoch int64   `json:"epoch"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// apiResponse is the common envelope of every Deriv API message.
type apiResponse struct {
	MsgType string      `json:"msg_type"`
	Error   *apiError   `json:"error"`
	Tick    *tickMsg    `json:"tick"`
	Candles []candleMsg `json:"candles"`
	Time    int64       `json:"time"`
}

// dial opens a fresh WebSocket connection to the API.
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ports.ErrConnectionFailed, c.url, err)
	}
	return conn, nil
}

// request performs one request/response exchange on a dedicated
// connection, skipping unrelated messages until msgType arrives.
func (c *Client) request(ctx context.Context, payload interface{}, msgType string) (*apiResponse, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteJSON(payload); err != nil {
		return nil, fmt.Errorf("%w: writing %s request: %v", ports.ErrConnectionFailed, msgType, err)
	}

	for {
		var resp apiResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("%w: reading %s response: %v", ports.ErrConnectionFailed, msgType, err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s: %s", ports.ErrInvalidRequest, resp.Error.Code, resp.Error.Message)
		}
		if resp.MsgType == msgType {
			return &resp, nil
		}
	}
}

// Ping checks connectivity to the API.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, map[string]interface{}{"ping": 1}, "ping")
	if err != nil {
		return err
	}
	c.logger.Debug(ctx, "Ping successful")
	return nil
}

// GetServerTime retrieves the API server time.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	resp, err := c.request(ctx, map[string]interface{}{"time": 1}, "time")
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(resp.Time, 0), nil
}

// GetCandleHistory retrieves up to limit historical candles for the
// asset at the given timeframe, oldest first. Deriv serves at most 5000
// candles per request.
func (c *Client) GetCandleHistory(ctx context.Context, asset string, timeframe int64, limit int) ([]*domain.Candle, error) {
	if limit <= 0 || limit > 5000 {
		return nil, fmt.Errorf("%w: candle count must be in 1..5000, got %d", ports.ErrInvalidRequest, limit)
	}

	payload := map[string]interface{}{
		"ticks_history":     asset,
		"style":             "candles",
		"granularity":       timeframe,
		"end":               "latest",
		"count":             limit,
		"adjust_start_time": 1,
	}
	resp, err := c.request(ctx, payload, "candles")
	if err != nil {
		return nil, err
	}

	candles := make([]*domain.Candle, 0, len(resp.Candles))
	for _, cm := range resp.Candles {
		candles = append(candles, &domain.Candle{
			Asset:     asset,
			Timeframe: timeframe,
			Timestamp: cm.Epoch,
			Open:      cm.Open,
			High:      cm.High,
			Low:       cm.Low,
			Close:     cm.Close,
		})
	}
	c.logger.Debug(ctx, "Candle history fetched", map[string]interface{}{"asset": asset, "count": len(candles)})
	return candles, nil
}

// StreamTicks subscribes to the per-second quote stream for the asset.
// The stream reconnects with exponential backoff until the context is
// cancelled or the attempt budget runs out.
func (c *Client) StreamTicks(ctx context.Context, asset string, handler func(tick *domain.Tick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamTicks"
	wsCtx, cancelWs := context.WithCancel(ctx)

	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.", map[string]interface{}{"asset": asset})
				return
			default:
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"asset": asset, "attempt": attempt + 1})
			streamErr := c.streamOnce(wsCtx, asset, handler)
			if wsCtx.Err() != nil {
				return
			}

			errHandler(fmt.Errorf("%w: tick stream for %s interrupted: %v", ports.ErrSubscriptionError, asset, streamErr))
			attempt++
			if attempt >= c.maxReconnectAttempts {
				c.logger.Error(wsCtx, streamErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"asset": asset, "maxAttempts": c.maxReconnectAttempts})
				return
			}

			// Exponential backoff with jitter
			delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(float64(delay) * 0.1)
			actualDelay := delay + jitter
			c.logger.Info(wsCtx, op+": Connection lost, retrying...", map[string]interface{}{"asset": asset, "attempt": attempt + 1, "delay": actualDelay.String()})

			select {
			case <-time.After(actualDelay):
			case <-wsCtx.Done():
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal, cancelling WebSocket context.", map[string]interface{}{"asset": asset})
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// streamOnce runs one subscription lifetime: connect, subscribe, pump
// ticks until the connection drops or the context is cancelled.
func (c *Client) streamOnce(ctx context.Context, asset string, handler func(tick *domain.Tick)) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop when the context is cancelled. The hook is
	// released on return so reconnect cycles do not accumulate watchers
	// for connections that are already dead.
	unhook := context.AfterFunc(ctx, func() { conn.Close() })
	defer unhook()

	subscribe := map[string]interface{}{"ticks": asset, "subscribe": 1}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("writing tick subscription: %w", err)
	}
	c.logger.Info(ctx, "Tick subscription established", map[string]interface{}{"asset": asset})

	for {
		var resp apiResponse
		if err := conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("reading tick stream: %w", err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s: %s", ports.ErrSubscriptionError, resp.Error.Code, resp.Error.Message)
		}
		if resp.Tick == nil {
			continue
		}

		handler(&domain.Tick{
			Asset:     resp.Tick.Symbol,
			Price:     resp.Tick.Quote,
			Timestamp: int64(resp.Tick.Epoch * 1000),
		})
	}
}
