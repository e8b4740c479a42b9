package swfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"AstroSense/internal/domain/models"
	drepo "AstroSense/internal/domain/repository"
)

// Client implements a MeasurementStream backed by a space-weather WebSocket
// feed. One frame carries one measurement update.
type Client struct {
	apiKey         string
	websocketURL   string
	channels       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new space-weather MeasurementStream.
func New(apiKey, websocketURL string, channels []string, reconnectDelay, pingInterval time.Duration) drepo.MeasurementStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := c.websocketURL
	if c.apiKey != "" {
		u = fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("swfeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("swfeed: connected")
	return nil
}

// Subscribe subscribes to the configured measurement channels.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("swfeed not connected")
	}
	for _, ch := range c.channels {
		msg := map[string]string{"type": "subscribe", "channel": ch}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		log.Printf("swfeed: subscribed %s", ch)
	}
	return nil
}

type feedUpdate struct {
	Timestamp      string  `json:"timestamp"`
	SolarWindSpeed float64 `json:"solar_wind_speed"`
	Bz             float64 `json:"bz"`
	KpIndex        float64 `json:"kp_index"`
	ProtonFlux     float64 `json:"proton_flux"`
	FlareClass     string  `json:"flare_class"`
	CMESpeed       float64 `json:"cme_speed"`
}

type feedMessage struct {
	Type string       `json:"type"`
	Data []feedUpdate `json:"data"`
}

// Read streams Measurement events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.Measurement, <-chan error) {
	measurements := make(chan *models.Measurement, 1024)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(measurements)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("swfeed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("swfeed read: %w", err)
					return
				}
				var m feedMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-measurement frames
					continue
				}
				if m.Type != "space_weather_update" {
					continue
				}
				for _, d := range m.Data {
					ts, err := time.Parse(time.RFC3339, d.Timestamp)
					if err != nil {
						ts = time.Now().UTC()
					}
					measurement := &models.Measurement{
						Timestamp:      ts,
						SolarWindSpeed: d.SolarWindSpeed,
						Bz:             d.Bz,
						KpIndex:        d.KpIndex,
						ProtonFlux:     d.ProtonFlux,
						FlareClass:     d.FlareClass,
						CMESpeed:       d.CMESpeed,
					}
					select {
					case measurements <- measurement:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return measurements, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }
