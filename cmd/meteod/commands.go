package main

import (
	"context"
	"fmt"

	"github.com/meteolab/meteod/pkg/client"
)

type command struct{}

// apiClient builds the daemon client from the connection flags, verifying
// the daemon is actually reachable first.
func (c command) apiClient(f APIFlags) (*client.Client, error) {
	cfg := client.DefaultConfig()
	if f.APIUrl != "" {
		cfg.BaseURL = f.APIUrl
	}
	if f.APIToken != "" {
		cfg.APIToken = f.APIToken
	}
	if f.APITimeout > 0 {
		cfg.Timeout = f.APITimeout
	}
	cl := client.New(cfg)
	if !cl.IsReachable(context.Background()) {
		return nil, fmt.Errorf("daemon not reachable at %s - please start daemon first with 'meteod serve'", cfg.BaseURL)
	}
	return cl, nil
}

// Status prints the scheduler snapshot
func (c command) Status(f APIFlags) error {
	cl, err := c.apiClient(f)
	if err != nil {
		return err
	}
	st, err := cl.Status(context.Background())
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// Pause stops future scheduled collection passes
func (c command) Pause(f APIFlags) error {
	cl, err := c.apiClient(f)
	if err != nil {
		return err
	}
	st, err := cl.Pause(context.Background())
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// Resume schedules collection anew from now
func (c command) Resume(f APIFlags) error {
	cl, err := c.apiClient(f)
	if err != nil {
		return err
	}
	st, err := cl.Resume(context.Background())
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// Collect triggers one collection pass immediately
func (c command) Collect(f APIFlags) error {
	cl, err := c.apiClient(f)
	if err != nil {
		return err
	}
	resp, err := cl.Collect(context.Background())
	if err != nil {
		return err
	}
	if !resp.Started {
		fmt.Println("Collection pass already in flight; trigger skipped.")
		return nil
	}
	printJSON(resp)
	return nil
}

// SettingsGet prints the runtime settings row
func (c command) SettingsGet(f APIFlags) error {
	cl, err := c.apiClient(f)
	if err != nil {
		return err
	}
	s, err := cl.GetSettings(context.Background())
	if err != nil {
		return err
	}
	printJSON(s)
	return nil
}

// SettingsSet applies a partial settings change
func (c command) SettingsSet(f SettingsSetFlags) error {
	var upd client.SettingsUpdate
	if f.IntervalChanged {
		upd.IntervalMinutes = &f.IntervalMinutes
	}
	if f.RefreshChanged {
		upd.RefreshSeconds = &f.RefreshSeconds
	}
	if f.FreshnessChanged {
		upd.FreshnessMinutes = &f.FreshnessMinutes
	}
	if upd.IntervalMinutes == nil && upd.RefreshSeconds == nil && upd.FreshnessMinutes == nil {
		return fmt.Errorf("settings set requires at least one of --interval-minutes, --refresh-seconds, --freshness-minutes")
	}

	cl, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	s, err := cl.UpdateSettings(context.Background(), upd)
	if err != nil {
		return err
	}
	printJSON(s)
	return nil
}

// LocationsList prints all stored locations
func (c command) LocationsList(f APIFlags) error {
	cl, err := c.apiClient(f)
	if err != nil {
		return err
	}
	locs, err := cl.Locations(context.Background())
	if err != nil {
		return err
	}
	printJSON(locs)
	return nil
}

// LocationAdd adds or updates a location
func (c command) LocationAdd(f LocationAddFlags) error {
	req := client.LocationRequest{Name: f.Name}
	if f.LatChanged {
		req.Lat = &f.Lat
	}
	if f.LonChanged {
		req.Lon = &f.Lon
	}
	if req.Name == "" && (req.Lat == nil || req.Lon == nil) {
		return fmt.Errorf("locations add requires --name or both --lat and --lon")
	}

	cl, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	loc, err := cl.AddLocation(context.Background(), req)
	if err != nil {
		return err
	}
	printJSON(loc)
	return nil
}

// LocationRemove removes a location by id
func (c command) LocationRemove(f LocationRemoveFlags) error {
	cl, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	if err := cl.DeleteLocation(context.Background(), f.ID); err != nil {
		return err
	}
	fmt.Printf("Removed location %d\n", f.ID)
	return nil
}

// Live prints the resolved weather feed
func (c command) Live(f LiveFlags) error {
	cl, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	if f.Name != "" {
		entry, err := cl.LiveOne(context.Background(), f.Name)
		if err != nil {
			return err
		}
		printJSON(entry)
		return nil
	}
	feed, err := cl.Live(context.Background())
	if err != nil {
		return err
	}
	printJSON(feed)
	return nil
}

// History prints stored measurements or per-location extremes
func (c command) History(f HistoryFlags) error {
	cl, err := c.apiClient(f.API)
	if err != nil {
		return err
	}
	q := client.HistoryQuery{Location: f.Location, Hours: f.Hours, Metric: f.Metric}
	if f.Metric != "" {
		ext, err := cl.Extremes(context.Background(), q)
		if err != nil {
			return err
		}
		printJSON(ext)
		return nil
	}
	rows, err := cl.History(context.Background(), q)
	if err != nil {
		return err
	}
	printJSON(rows)
	return nil
}
