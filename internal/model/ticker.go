package model

// Ticker represents a stock symbol reference row
type Ticker struct {
	Ticker string `json:"ticker" db:"ticker"`
	Name   string `json:"name" db:"name"`
}

// TickersResponse is the list envelope for tickers
type TickersResponse struct {
	Count int      `json:"count"`
	Items []Ticker `json:"items"`
}
