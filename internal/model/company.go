package model

// Company represents a company profile, keyed by ticker
type Company struct {
	Ticker    string  `json:"ticker" db:"ticker" binding:"required"`
	Name      string  `json:"name" db:"name" binding:"required"`
	Website   string  `json:"website" db:"website"`
	Country   string  `json:"country" db:"country"`
	Logo      string  `json:"logo" db:"logo"`
	Industry  *string `json:"industry" db:"industry"`
	Exchange  *string `json:"exchange" db:"exchange"`
	Phone     *string `json:"phone" db:"phone"`
	MarketCap *int64  `json:"market_cap" db:"market_cap"`
	NumShares *int64  `json:"num_shares" db:"num_shares"`
}
