// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package samsara wraps the Samsara fleet telematics REST API: bearer
// auth, client-side rate limiting, bounded page-number pagination, and
// retry with exponential backoff on transient failures.
package samsara

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxPages bounds pagination so a bad hasNextPage flag cannot spin
	// the client forever.
	maxPages = 100

	// requestsPerMinute is the documented per-token API quota.
	requestsPerMinute = 60
)

// Config holds Samsara API connection settings.
type Config struct {
	APIToken       string
	BaseURL        string
	OrganizationID string
	GroupID        string
	Timeout        time.Duration
	MaxRetries     int
}

// DefaultConfig returns settings for the PEPMove fleet organization.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.samsara.com",
		OrganizationID: "5005620",
		GroupID:        "129031",
		Timeout:        30 * time.Second,
		MaxRetries:     3,
	}
}

// Client is a rate-limited Samsara API client. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Client from cfg, filling unset fields from DefaultConfig.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.OrganizationID == "" {
		cfg.OrganizationID = def.OrganizationID
	}
	if cfg.GroupID == "" {
		cfg.GroupID = def.GroupID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute)/60.0, requestsPerMinute),
		log:     slog.Default().With("component", "samsara"),
	}
}

// envelope is the standard list response shape.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	Pagination struct {
		HasNextPage bool   `json:"hasNextPage"`
		EndCursor   string `json:"endCursor"`
	} `json:"pagination"`
}

// FetchTrips returns all trips for the configured group in [start, end).
func (c *Client) FetchTrips(ctx context.Context, start, end time.Time) ([]Trip, error) {
	params := url.Values{}
	params.Set("startTime", start.UTC().Format(time.RFC3339))
	params.Set("endTime", end.UTC().Format(time.RFC3339))

	var trips []Trip
	err := c.getPaginated(ctx, "/fleet/trips", params, func(data json.RawMessage) error {
		var page []Trip
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		trips = append(trips, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info("fetched trips", "count", len(trips),
		"start", start.Format(time.RFC3339), "end", end.Format(time.RFC3339))
	return trips, nil
}

// FetchVehicleLocations returns the latest GPS reading for each vehicle.
func (c *Client) FetchVehicleLocations(ctx context.Context) ([]VehicleLocation, error) {
	var locs []VehicleLocation
	err := c.getPaginated(ctx, "/fleet/vehicles/locations", url.Values{}, func(data json.RawMessage) error {
		var page []VehicleLocation
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		locs = append(locs, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locs, nil
}

// ListDrivers returns the drivers in the configured group.
func (c *Client) ListDrivers(ctx context.Context) ([]EntityRef, error) {
	var drivers []EntityRef
	err := c.getPaginated(ctx, "/fleet/drivers", url.Values{}, func(data json.RawMessage) error {
		var page []EntityRef
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		drivers = append(drivers, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drivers, nil
}

// ListVehicles returns the vehicles in the configured group.
func (c *Client) ListVehicles(ctx context.Context) ([]EntityRef, error) {
	var vehicles []EntityRef
	err := c.getPaginated(ctx, "/fleet/vehicles", url.Values{}, func(data json.RawMessage) error {
		var page []EntityRef
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		vehicles = append(vehicles, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vehicles, nil
}

// FetchDriverStats returns per-driver activity aggregates for the window.
func (c *Client) FetchDriverStats(ctx context.Context, start, end time.Time) ([]DriverStats, error) {
	params := url.Values{}
	params.Set("startTime", start.UTC().Format(time.RFC3339))
	params.Set("endTime", end.UTC().Format(time.RFC3339))

	var stats []DriverStats
	err := c.getPaginated(ctx, "/fleet/drivers/stats", params, func(data json.RawMessage) error {
		var page []DriverStats
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		stats = append(stats, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// FetchVehicleStats returns the latest gauge snapshot for each vehicle.
func (c *Client) FetchVehicleStats(ctx context.Context) ([]VehicleStats, error) {
	var stats []VehicleStats
	err := c.getPaginated(ctx, "/fleet/vehicles/stats", url.Values{}, func(data json.RawMessage) error {
		var page []VehicleStats
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		stats = append(stats, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// FetchRoutes returns planned routes scheduled in [start, end).
func (c *Client) FetchRoutes(ctx context.Context, start, end time.Time) ([]Route, error) {
	params := url.Values{}
	params.Set("startTime", start.UTC().Format(time.RFC3339))
	params.Set("endTime", end.UTC().Format(time.RFC3339))

	var routes []Route
	err := c.getPaginated(ctx, "/fleet/routes", params, func(data json.RawMessage) error {
		var page []Route
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		routes = append(routes, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// FetchLocationHistory returns sampled GPS tracks per vehicle for the
// window, for replaying where the fleet actually drove.
func (c *Client) FetchLocationHistory(ctx context.Context, start, end time.Time) ([]VehicleLocationHistory, error) {
	params := url.Values{}
	params.Set("startTime", start.UTC().Format(time.RFC3339))
	params.Set("endTime", end.UTC().Format(time.RFC3339))

	var tracks []VehicleLocationHistory
	err := c.getPaginated(ctx, "/fleet/vehicles/locations/history", params, func(data json.RawMessage) error {
		var page []VehicleLocationHistory
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		tracks = append(tracks, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// ListAddresses returns the organization's saved addresses with their
// geofences flattened to center plus radius.
func (c *Client) ListAddresses(ctx context.Context) ([]SavedAddress, error) {
	var addrs []SavedAddress
	err := c.getPaginated(ctx, "/addresses", url.Values{}, func(data json.RawMessage) error {
		var page []SavedAddress
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		addrs = append(addrs, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// CreateAddress saves a new address with a circular geofence and
// returns it with the server-assigned id.
func (c *Client) CreateAddress(ctx context.Context, addr SavedAddress) (*SavedAddress, error) {
	var created SavedAddress
	if err := c.post(ctx, "/addresses", addr, &created); err != nil {
		return nil, err
	}
	c.log.Info("created address", "id", created.ID, "name", created.Name)
	return &created, nil
}

// routePayload is the create-route request body.
type routePayload struct {
	Name          string `json:"name"`
	DriverID      string `json:"driverId,omitempty"`
	ScheduledTime string `json:"scheduledRouteStartTime,omitempty"`
}

// CreateRoute schedules a dispatch route for the given driver.
func (c *Client) CreateRoute(ctx context.Context, r Route) (*Route, error) {
	payload := routePayload{
		Name:          r.Name,
		DriverID:      r.Driver.ID,
		ScheduledTime: r.ScheduledTime,
	}
	var created Route
	if err := c.post(ctx, "/fleet/routes", payload, &created); err != nil {
		return nil, err
	}
	c.log.Info("created route", "id", created.ID, "name", created.Name)
	return &created, nil
}

// FetchFleetSummary composes a fleet snapshot from the locations and
// trips endpoints. Trips still missing an end time count as active.
func (c *Client) FetchFleetSummary(ctx context.Context) (*FleetSummary, error) {
	locs, err := c.FetchVehicleLocations(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	trips, err := c.FetchTrips(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, err
	}

	drivers := make(map[string]struct{})
	active := 0
	for _, t := range trips {
		if t.Driver.ID != "" {
			drivers[t.Driver.ID] = struct{}{}
		}
		if t.EndTime == "" {
			active++
		}
	}
	return &FleetSummary{
		VehicleCount: len(locs),
		DriverCount:  len(drivers),
		ActiveTrips:  active,
		GeneratedAt:  now,
	}, nil
}

// getPaginated walks page-numbered list responses, invoking collect for
// each page's data array until hasNextPage goes false or maxPages is hit.
func (c *Client) getPaginated(ctx context.Context, endpoint string, params url.Values, collect func(json.RawMessage) error) error {
	params.Set("groupIds", c.cfg.GroupID)
	for page := 1; page <= maxPages; page++ {
		params.Set("page", strconv.Itoa(page))

		var env envelope
		if err := c.get(ctx, endpoint, params, &env); err != nil {
			return err
		}
		if len(env.Data) > 0 {
			if err := collect(env.Data); err != nil {
				return fmt.Errorf("decode %s page %d: %w", endpoint, page, err)
			}
		}
		if !env.Pagination.HasNextPage {
			return nil
		}
	}
	c.log.Warn("pagination cap reached", "endpoint", endpoint, "pages", maxPages)
	return nil
}

// get performs one rate-limited GET with retries. Authorization errors
// fail immediately; 429 honors Retry-After; 5xx backs off exponentially.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			c.log.Debug("retrying request", "endpoint", endpoint, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("build request %s: %w", endpoint, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request %s: %w", endpoint, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode %s response: %w", endpoint, err)
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			resp.Body.Close()
			c.log.Warn("rate limited by api", "endpoint", endpoint, "retry_after", wait)
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}

		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(body)}

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(body)}
		}
	}
	return lastErr
}

// post performs one rate-limited JSON POST. Creates are not retried;
// a replayed create could duplicate the resource.
func (c *Client) post(ctx context.Context, endpoint string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := strings.TrimRight(c.cfg.BaseURL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("decode %s response: %w", endpoint, err)
		}
		if len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, out)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, endpoint)

	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(raw)}
	}
}

// retryAfter parses the Retry-After header, defaulting to one second.
func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
