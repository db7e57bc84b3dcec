package model

import (
	"time"
)

// Sentiment of a generated insight
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Insight is a single generated observation about the market
type Insight struct {
	Message   string    `json:"message" validate:"required"`
	Sentiment Sentiment `json:"sentiment" validate:"oneof=positive neutral negative"`
}

// Insights groups the insights generated for one datetime
type Insights struct {
	Datetime time.Time `json:"datetime" validate:"required"`
	Insights []Insight `json:"insights" validate:"min=3,max=5,dive"`
}

// InsightsResponse is the structured result of the insight generator
type InsightsResponse struct {
	Count int        `json:"count"`
	Items []Insights `json:"items"`
}
