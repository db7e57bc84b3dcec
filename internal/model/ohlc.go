package model

import (
	"time"
)

// OHLC represents one price bar of a ticker at a point in time
type OHLC struct {
	Datetime  time.Time `json:"datetime" db:"datetime"`
	Timestamp int64     `json:"timestamp" db:"timestamp"`
	Ticker    string    `json:"ticker" db:"ticker"`
	Name      string    `json:"name" db:"name"`
	Open      float64   `json:"open" db:"open"`
	High      float64   `json:"high" db:"high"`
	Low       float64   `json:"low" db:"low"`
	Close     float64   `json:"close" db:"close"`
	Volume    int64     `json:"volume" db:"volume"`
	Source    string    `json:"source" db:"source"`
}

// JoinedOHLC is an OHLC row with the name stored in the tickers table
type JoinedOHLC struct {
	OHLC
	StoredCompanyName string `json:"stored_company_name" db:"stored_company_name"`
}

// OHLCWindowRow is an OHLC row of the latest datetime together with the
// values of the same ticker at the previous datetime, if any
type OHLCWindowRow struct {
	OHLC
	PrevDatetime *time.Time `db:"prev_datetime"`
	PrevOpen     *float64   `db:"prev_open"`
	PrevHigh     *float64   `db:"prev_high"`
	PrevLow      *float64   `db:"prev_low"`
	PrevClose    *float64   `db:"prev_close"`
	PrevVolume   *int64     `db:"prev_volume"`
}

// HasPrevious reports whether every lagged field is present
func (r OHLCWindowRow) HasPrevious() bool {
	return r.PrevDatetime != nil && r.PrevOpen != nil && r.PrevHigh != nil && r.PrevLow != nil &&
		r.PrevClose != nil && r.PrevVolume != nil
}

// OHLCResponse is the list envelope for OHLC reads
type OHLCResponse struct {
	Count int          `json:"count"`
	Items []JoinedOHLC `json:"items"`
}

// LatestResponse is the list envelope for the latest datetime slice
type LatestResponse struct {
	Count int    `json:"count"`
	Items []OHLC `json:"items"`
}

// Previous returns the lagged bar; only meaningful when HasPrevious is true
func (r OHLCWindowRow) Previous() OHLC {
	prev := OHLC{
		Ticker: r.Ticker,
		Name:   r.Name,
		Source: r.Source,
	}
	if r.PrevDatetime != nil {
		prev.Datetime = *r.PrevDatetime
		prev.Timestamp = r.PrevDatetime.Unix()
	}
	if r.PrevOpen != nil {
		prev.Open = *r.PrevOpen
	}
	if r.PrevHigh != nil {
		prev.High = *r.PrevHigh
	}
	if r.PrevLow != nil {
		prev.Low = *r.PrevLow
	}
	if r.PrevClose != nil {
		prev.Close = *r.PrevClose
	}
	if r.PrevVolume != nil {
		prev.Volume = *r.PrevVolume
	}
	return prev
}

// OHLCMessage is one bar as published on the ingestion queue. Datetime
// keeps the vendor's text form.
type OHLCMessage struct {
	Datetime  string  `json:"datetime"`
	Timestamp int64   `json:"timestamp"`
	Ticker    string  `json:"ticker"`
	Name      string  `json:"name"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	Source    string  `json:"source"`
}
