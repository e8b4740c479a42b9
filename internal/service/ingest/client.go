package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"AstroSense/internal/domain/models"
	svccache "AstroSense/internal/service/cache"
	"AstroSense/internal/service/ratelimit"
	xhttp "AstroSense/pkg/http"
	applogger "AstroSense/pkg/logger"
)

const (
	// minimum spacing between upstream requests
	requestSpacing = 100 * time.Millisecond

	rateLimitKey      = "upstream"
	rateLimitCapacity = 10
	rateLimitRefill   = 10 // tokens per second

	donkiTimeLayout = "2006-01-02T15:04Z"
)

// Config holds upstream endpoints and retry behaviour for the ingestion client.
type Config struct {
	NOAABaseURL  string
	DONKIBaseURL string
	NASAAPIKey   string
	CacheTTL     time.Duration
	MaxRetries   int
	BaseBackoff  time.Duration
	LookbackDays int
}

func (c *Config) applyDefaults() {
	if c.NOAABaseURL == "" {
		c.NOAABaseURL = "https://services.swpc.noaa.gov"
	}
	if c.DONKIBaseURL == "" {
		c.DONKIBaseURL = "https://api.nasa.gov/DONKI"
	}
	if c.NASAAPIKey == "" {
		c.NASAAPIKey = "DEMO_KEY"
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 30
	}
}

// rtsw endpoint candidates, in order of preference. Filenames under
// /json/rtsw/ have changed over time upstream.
var (
	rtswWindCandidates = []string{"rtsw_wind_1m.json", "rtsw_plasma_1m.json"}
	rtswMagCandidates  = []string{"rtsw_mag_1m.json"}
)

// Client pulls space-weather measurements from NOAA SWPC and NASA DONKI.
// Responses are cached briefly and requests are rate limited and retried
// with exponential backoff, so callers can poll it aggressively.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	cache   *svccache.TTLCache
	limiter *ratelimit.Limiter

	mu  sync.Mutex
	rng *rand.Rand

	clock clockwork.Clock
	l     *applogger.Logger
}

func NewClient(cfg Config, clock clockwork.Clock, l *applogger.Logger) *Client {
	cfg.applyDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		cache:   svccache.NewTTLCache(),
		limiter: ratelimit.New(),
		rng:     rand.New(rand.NewSource(clock.Now().UnixNano())),
		clock:   clock,
		l:       l,
	}
}

// FetchAll gathers the five upstream sources concurrently. A failed source
// becomes an error marker in the snapshot; the call itself only fails when
// the context is cancelled.
func (c *Client) FetchAll(ctx context.Context) (*models.SpaceWeatherSnapshot, error) {
	snap := &models.SpaceWeatherSnapshot{Timestamp: c.clock.Now().UTC()}

	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		m, err := c.FetchSolarWind(ctx)
		snap.SolarWind = sourceResult(m, err)
	}()
	go func() {
		defer wg.Done()
		m, err := c.FetchMagneticField(ctx)
		snap.MagneticField = sourceResult(m, err)
	}()
	go func() {
		defer wg.Done()
		m, err := c.FetchKpIndex(ctx)
		snap.KpIndex = sourceResult(m, err)
	}()
	go func() {
		defer wg.Done()
		evs, err := c.FetchCMEEvents(ctx)
		snap.CMEEvents = sourceResult(evs, err)
	}()
	go func() {
		defer wg.Done()
		evs, err := c.FetchSolarFlares(ctx)
		snap.SolarFlares = sourceResult(evs, err)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, errMsg := range []string{
		snap.SolarWind.Err, snap.MagneticField.Err, snap.KpIndex.Err,
		snap.CMEEvents.Err, snap.SolarFlares.Err,
	} {
		if errMsg != "" {
			failed++
		}
	}
	if c.l != nil {
		c.l.Info("space weather snapshot fetched",
			applogger.Int("sources", 5),
			applogger.Int("failed", failed))
	}
	return snap, nil
}

func sourceResult[T any](data T, err error) models.SourceResult[T] {
	if err != nil {
		return models.SourceResult[T]{Err: err.Error()}
	}
	return models.SourceResult[T]{Data: data}
}

// rtswRecord is one row of the NOAA real-time solar wind feed.
type rtswRecord struct {
	TimeTag           string   `json:"time_tag"`
	ProtonSpeed       *float64 `json:"proton_speed"`
	ProtonDensity     *float64 `json:"proton_density"`
	ProtonTemperature *float64 `json:"proton_temperature"`
	BxGSM             *float64 `json:"bx_gsm"`
	ByGSM             *float64 `json:"by_gsm"`
	BzGSM             *float64 `json:"bz_gsm"`
	BzGSE             *float64 `json:"bz_gse"`
	Bt                *float64 `json:"bt"`
}

// FetchSolarWind returns the most recent real-time solar wind measurement.
func (c *Client) FetchSolarWind(ctx context.Context) (models.Measurement, error) {
	var records []rtswRecord
	err := c.getFirstWorking(ctx, rtswWindCandidates, &records)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("solar wind: %w", err)
	}
	if len(records) == 0 {
		return models.Measurement{}, fmt.Errorf("solar wind: no data available")
	}

	latest := records[len(records)-1]
	m := models.Measurement{Timestamp: parseTimeTag(latest.TimeTag, c.clock)}
	if latest.ProtonSpeed != nil {
		m.SolarWindSpeed = *latest.ProtonSpeed
	}
	if latest.ProtonDensity != nil {
		m.ProtonFlux = *latest.ProtonDensity
	}
	if c.l != nil {
		c.l.Debug("solar wind fetched", applogger.Any("speed_km_s", m.SolarWindSpeed))
	}
	return m, nil
}

// FetchMagneticField returns the most recent IMF measurement. GSM coordinates
// are preferred over GSE; GSM Bz drives geomagnetic coupling.
func (c *Client) FetchMagneticField(ctx context.Context) (models.Measurement, error) {
	var records []rtswRecord
	err := c.getFirstWorking(ctx, rtswMagCandidates, &records)
	if err != nil {
		return models.Measurement{}, fmt.Errorf("magnetic field: %w", err)
	}
	if len(records) == 0 {
		return models.Measurement{}, fmt.Errorf("magnetic field: no data available")
	}

	latest := records[len(records)-1]
	m := models.Measurement{Timestamp: parseTimeTag(latest.TimeTag, c.clock)}
	switch {
	case latest.BzGSM != nil:
		m.Bz = *latest.BzGSM
	case latest.BzGSE != nil:
		m.Bz = *latest.BzGSE
	}
	if c.l != nil {
		c.l.Debug("magnetic field fetched", applogger.Any("bz_nt", m.Bz))
	}
	return m, nil
}

type kpRecord struct {
	TimeTag     string   `json:"time_tag"`
	KpIndex     *float64 `json:"kp_index"`
	EstimatedKp *float64 `json:"estimated_kp"`
}

// FetchKpIndex returns the latest planetary Kp estimate, falling back from
// the real-time feed to the 1-minute product.
func (c *Client) FetchKpIndex(ctx context.Context) (models.Measurement, error) {
	var records []kpRecord
	err := c.getJSON(ctx, c.cfg.NOAABaseURL+"/json/geomag/rt-kp.json", nil, &records)
	if err != nil || len(records) == 0 {
		if fallbackErr := c.getJSON(ctx,
			c.cfg.NOAABaseURL+"/products/geomag/planetary_k_index_1m.json", nil, &records); fallbackErr != nil {
			if err == nil {
				err = fallbackErr
			}
			return models.Measurement{}, fmt.Errorf("kp index: %w", err)
		}
	}
	if len(records) == 0 {
		return models.Measurement{}, fmt.Errorf("kp index: no data available")
	}

	latest := records[len(records)-1]
	m := models.Measurement{Timestamp: parseTimeTag(latest.TimeTag, c.clock)}
	switch {
	case latest.KpIndex != nil:
		m.KpIndex = *latest.KpIndex
	case latest.EstimatedKp != nil:
		m.KpIndex = *latest.EstimatedKp
	}
	if c.l != nil {
		c.l.Debug("kp index fetched", applogger.Any("kp", m.KpIndex))
	}
	return m, nil
}

type donkiCME struct {
	ActivityID     string `json:"activityID"`
	StartTime      string `json:"startTime"`
	SourceLocation string `json:"sourceLocation"`
	CMEAnalyses    []struct {
		Speed *float64 `json:"speed"`
	} `json:"cmeAnalyses"`
}

// FetchCMEEvents returns CME detections from the configured lookback window,
// oldest first.
func (c *Client) FetchCMEEvents(ctx context.Context) ([]models.CMEEvent, error) {
	now := c.clock.Now().UTC()
	return c.FetchCMEEventsRange(ctx, now.AddDate(0, 0, -c.cfg.LookbackDays), now)
}

// FetchCMEEventsRange returns CME detections between start and end,
// oldest first.
func (c *Client) FetchCMEEventsRange(ctx context.Context, start, end time.Time) ([]models.CMEEvent, error) {
	var raw []donkiCME
	if err := c.getJSON(ctx, c.cfg.DONKIBaseURL+"/CME", c.donkiParams(start, end), &raw); err != nil {
		return nil, fmt.Errorf("cme events: %w", err)
	}

	events := make([]models.CMEEvent, 0, len(raw))
	for _, r := range raw {
		ev := models.CMEEvent{
			DetectionTime: parseDONKITime(r.StartTime),
			SourceRegion:  r.SourceLocation,
		}
		if len(r.CMEAnalyses) > 0 && r.CMEAnalyses[0].Speed != nil {
			ev.Speed = *r.CMEAnalyses[0].Speed
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DetectionTime.Before(events[j].DetectionTime)
	})
	if c.l != nil {
		c.l.Debug("cme events fetched", applogger.Int("count", len(events)))
	}
	return events, nil
}

type donkiFlare struct {
	BeginTime      string `json:"beginTime"`
	PeakTime       string `json:"peakTime"`
	ClassType      string `json:"classType"`
	SourceLocation string `json:"sourceLocation"`
}

// FetchSolarFlares returns flare detections from the lookback window,
// oldest first.
func (c *Client) FetchSolarFlares(ctx context.Context) ([]models.FlareEvent, error) {
	now := c.clock.Now().UTC()
	return c.FetchSolarFlaresRange(ctx, now.AddDate(0, 0, -c.cfg.LookbackDays), now)
}

// FetchSolarFlaresRange returns flare detections between start and end,
// oldest first.
func (c *Client) FetchSolarFlaresRange(ctx context.Context, start, end time.Time) ([]models.FlareEvent, error) {
	var raw []donkiFlare
	if err := c.getJSON(ctx, c.cfg.DONKIBaseURL+"/FLR", c.donkiParams(start, end), &raw); err != nil {
		return nil, fmt.Errorf("solar flares: %w", err)
	}

	events := make([]models.FlareEvent, 0, len(raw))
	for _, r := range raw {
		ts := r.BeginTime
		if ts == "" {
			ts = r.PeakTime
		}
		events = append(events, models.FlareEvent{
			DetectionTime: parseDONKITime(ts),
			Class:         r.ClassType,
			SourceRegion:  r.SourceLocation,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DetectionTime.Before(events[j].DetectionTime)
	})
	if c.l != nil {
		c.l.Debug("solar flares fetched", applogger.Int("count", len(events)))
	}
	return events, nil
}

func (c *Client) donkiParams(start, end time.Time) map[string][]string {
	return map[string][]string{
		"startDate": {start.Format("2006-01-02")},
		"endDate":   {end.Format("2006-01-02")},
		"api_key":   {c.cfg.NASAAPIKey},
	}
}

// getFirstWorking tries each RTSW filename in order until one responds.
func (c *Client) getFirstWorking(ctx context.Context, candidates []string, dest any) error {
	var lastErr error
	for _, filename := range candidates {
		url := c.cfg.NOAABaseURL + "/json/rtsw/" + filename
		if err := c.getJSON(ctx, url, nil, dest); err != nil {
			lastErr = err
			if c.l != nil {
				c.l.Debug("rtsw endpoint unavailable",
					applogger.String("url", url), applogger.Error(err))
			}
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no endpoint candidates")
	}
	return lastErr
}

// getJSON fetches a URL through the cache, rate limiter and retry loop,
// decoding the response body into dest.
func (c *Client) getJSON(ctx context.Context, url string, params map[string][]string, dest any) error {
	key := cacheKey(url, params)
	if body, ok, _ := c.cache.GetBytes(key); ok {
		return json.Unmarshal(body, dest)
	}

	body, err := c.requestWithRetry(ctx, url, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	_ = c.cache.SetBytes(key, body, c.cfg.CacheTTL)
	return nil
}

func (c *Client) requestWithRetry(ctx context.Context, url string, params map[string][]string) ([]byte, error) {
	backoff := c.cfg.BaseBackoff
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := c.waitForSlot(ctx); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, url, params)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if c.l != nil {
			c.l.Warn("upstream request failed",
				applogger.String("url", url),
				applogger.Int("attempt", attempt+1),
				applogger.Error(err))
		}
		if attempt < c.cfg.MaxRetries-1 {
			// exponential backoff with jitter
			c.mu.Lock()
			wait := time.Duration(float64(backoff) * (1 + c.rng.Float64()*0.3))
			c.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(wait):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("all %d attempts failed for %s: %w", c.cfg.MaxRetries, url, lastErr)
}

func (c *Client) doRequest(ctx context.Context, url string, params map[string][]string) ([]byte, error) {
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         url,
		QueryParams: params,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// waitForSlot blocks until the shared token bucket admits one request.
func (c *Client) waitForSlot(ctx context.Context) error {
	for !c.limiter.Allow(rateLimitKey, rateLimitCapacity, rateLimitRefill) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(requestSpacing):
		}
	}
	return nil
}

func cacheKey(url string, params map[string][]string) string {
	if len(params) == 0 {
		return url
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(url)
	sb.WriteByte('?')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(params[k], ","))
	}
	return sb.String()
}

// parseTimeTag handles the NOAA time_tag format, falling back to now when
// the upstream row is malformed.
func parseTimeTag(tag string, clock clockwork.Clock) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, tag); err == nil {
			return ts.UTC()
		}
	}
	return clock.Now().UTC()
}

func parseDONKITime(s string) time.Time {
	if ts, err := time.Parse(donkiTimeLayout, s); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return time.Time{}
}
