package main

import "time"

// APIFlags Flag structs to decouple cobra from logic for testing.
type APIFlags struct {
	APIUrl     string
	APIToken   string
	APITimeout time.Duration
}

type SettingsSetFlags struct {
	IntervalMinutes  int
	RefreshSeconds   int
	FreshnessMinutes int
	// Changed tracks which flags were actually set on the command line so
	// unset values never clobber the stored row.
	IntervalChanged  bool
	RefreshChanged   bool
	FreshnessChanged bool
	API              APIFlags
}

type LocationAddFlags struct {
	Name string
	Lat  float64
	Lon  float64
	// Changed markers distinguish an explicit 0 from an absent coordinate.
	LatChanged bool
	LonChanged bool
	API        APIFlags
}

type LocationRemoveFlags struct {
	ID  int64
	API APIFlags
}

type LiveFlags struct {
	Name string
	API  APIFlags
}

type HistoryFlags struct {
	Location string
	Hours    int
	Metric   string
	API      APIFlags
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}
