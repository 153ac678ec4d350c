// Package t212 implements the Trading212 collaborators: the public
// metadata API (pies, instruments, exchanges) and the web equity API
// that places orders through an externally maintained session.
package t212

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/pkg/config"
	"github.com/wonny/autoinvest/pkg/httputil"
	"github.com/wonny/autoinvest/pkg/logger"
)

const metadataTTL = 3 * time.Hour

// MetadataClient reads the public API with an Authorization token.
// Instrument and exchange metadata sit behind a TTL cache; pie detail
// fetches are rate limited because the endpoint throttles aggressively.
type MetadataClient struct {
	http    *httputil.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	log     *logger.Logger

	exchanges   *ttlCache[[]contracts.VenueCalendar]
	instruments *ttlCache[map[string]contracts.InstrumentMeta]
}

// NewMetadataClient creates a metadata client for the configured mode.
func NewMetadataClient(cfg config.T212Config, client *httputil.Client, log *logger.Logger) *MetadataClient {
	return &MetadataClient{
		http:    client,
		baseURL: cfg.BaseURL(),
		token:   cfg.APIToken,
		// One pie-detail request per 5 seconds.
		limiter:     rate.NewLimiter(rate.Every(5*time.Second), 1),
		log:         log,
		exchanges:   newTTLCache[[]contracts.VenueCalendar](metadataTTL, time.Now),
		instruments: newTTLCache[map[string]contracts.InstrumentMeta](metadataTTL, time.Now),
	}
}

// FindPie returns the pie with the given name, or nil when the account
// has no such pie.
func (c *MetadataClient) FindPie(ctx context.Context, name string) (*contracts.Pie, error) {
	var entries []pieListEntry
	if err := c.get(ctx, "/api/v0/equity/pies", &entries); err != nil {
		return nil, fmt.Errorf("failed to list pies: %w", err)
	}

	for _, entry := range entries {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var p pie
		if err := c.get(ctx, fmt.Sprintf("/api/v0/equity/pies/%d", entry.ID), &p); err != nil {
			return nil, fmt.Errorf("failed to fetch pie %d: %w", entry.ID, err)
		}

		if p.Settings.Name != name {
			continue
		}

		result := &contracts.Pie{Name: p.Settings.Name}
		for _, inst := range p.Instruments {
			result.Slices = append(result.Slices, contracts.PieSlice{
				Ticker: inst.Ticker,
				Weight: inst.ExpectedShare,
			})
		}
		return result, nil
	}

	return nil, nil
}

// Instruments returns per-ticker metadata, cached for the TTL.
func (c *MetadataClient) Instruments(ctx context.Context) (map[string]contracts.InstrumentMeta, error) {
	return c.instruments.get(func() (map[string]contracts.InstrumentMeta, error) {
		var raw []instrument
		if err := c.get(ctx, "/api/v0/equity/metadata/instruments", &raw); err != nil {
			return nil, fmt.Errorf("failed to fetch instruments: %w", err)
		}

		metas := make(map[string]contracts.InstrumentMeta, len(raw))
		for _, inst := range raw {
			metas[inst.Ticker] = contracts.InstrumentMeta{
				Ticker:   inst.Ticker,
				VenueID:  inst.WorkingScheduleID,
				Currency: inst.CurrencyCode,
				Name:     inst.ShortName,
			}
		}

		c.log.WithField("count", len(metas)).Debug("Fetched instrument metadata")
		return metas, nil
	})
}

// Venues returns every venue calendar across all exchanges, cached for
// the TTL. Calendars keep the API's event order; the producer sends
// them sorted.
func (c *MetadataClient) Venues(ctx context.Context) ([]contracts.VenueCalendar, error) {
	return c.exchanges.get(func() ([]contracts.VenueCalendar, error) {
		var raw []exchange
		if err := c.get(ctx, "/api/v0/equity/metadata/exchanges", &raw); err != nil {
			return nil, fmt.Errorf("failed to fetch exchanges: %w", err)
		}

		var venues []contracts.VenueCalendar
		for _, ex := range raw {
			for _, ws := range ex.WorkingSchedules {
				cal := contracts.VenueCalendar{ID: ws.ID}
				for _, ev := range ws.TimeEvents {
					cal.Events = append(cal.Events, contracts.TimeEvent{
						Date: ev.Date,
						Type: contracts.EventType(ev.Type),
					})
				}
				venues = append(venues, cal)
			}
		}

		c.log.WithField("count", len(venues)).Debug("Fetched venue calendars")
		return venues, nil
	})
}

func (c *MetadataClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("metadata API rejected token: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata API returned status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", path, err)
	}

	return nil
}
