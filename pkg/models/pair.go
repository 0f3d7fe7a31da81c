package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type Pair struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	NetworkID    int    `json:"networkId"`
	ExchangeHash string `json:"exchangeHash"`
	Fee          *int   `json:"fee,omitempty"`
	TickSpacing  *int   `json:"tickSpacing,omitempty"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	CreatedAt    *int64 `json:"createdAt,omitempty"`
}

// PairID builds the "<address>:<networkId>" id the API uses for pairs.
func PairID(address string, networkID int) string {
	return address + ":" + strconv.Itoa(networkID)
}

type PairMetadata struct {
	ID                 string           `json:"id"`
	PairAddress        string           `json:"pairAddress"`
	NetworkID          *int             `json:"networkId,omitempty"`
	ExchangeID         *string          `json:"exchangeId,omitempty"`
	Fee                *int             `json:"fee,omitempty"`
	Price              decimal.Decimal  `json:"price"`
	PriceNonQuoteToken *decimal.Decimal `json:"priceNonQuoteToken,omitempty"`
	Liquidity          decimal.Decimal  `json:"liquidity"`
	LiquidityToken     *string          `json:"liquidityToken,omitempty"`
	Volume24           *decimal.Decimal `json:"volume24,omitempty"`
	PriceChange24      *float64         `json:"priceChange24,omitempty"`
	QuoteToken         *QuoteToken      `json:"quoteToken,omitempty"`
	Token0             *EnhancedToken   `json:"token0,omitempty"`
	Token1             *EnhancedToken   `json:"token1,omitempty"`
}

type EventsQueryInput struct {
	Address       string      `json:"address" validate:"required,address"`
	NetworkID     int         `json:"networkId" validate:"networkid"`
	QuoteToken    *QuoteToken `json:"quoteToken,omitempty"`
	EventType     *EventType  `json:"eventType,omitempty"`
	TimestampFrom *int64      `json:"timestampFrom,omitempty"`
	TimestampTo   *int64      `json:"timestampTo,omitempty"`
}

// Event is a single on-chain pair event.
type Event struct {
	ID               string           `json:"id"`
	Address          string           `json:"address"`
	NetworkID        int              `json:"networkId"`
	BlockNumber      int64            `json:"blockNumber"`
	BlockHash        string           `json:"blockHash"`
	TransactionHash  string           `json:"transactionHash"`
	TransactionIndex int              `json:"transactionIndex"`
	LogIndex         int              `json:"logIndex"`
	Timestamp        int64            `json:"timestamp"`
	EventType        EventType        `json:"eventType"`
	Maker            *string          `json:"maker,omitempty"`
	QuoteToken       *QuoteToken      `json:"quoteToken,omitempty"`
	PriceUsd         *decimal.Decimal `json:"priceUsd,omitempty"`
	AmountUsd        *decimal.Decimal `json:"amountUsd,omitempty"`
	Data             JSON             `json:"data,omitempty"`
}

type EventConnection struct {
	Items  []*Event `json:"items"`
	Cursor *string  `json:"cursor,omitempty"`
}

type AddEventsOutput struct {
	Address    string      `json:"address"`
	ID         string      `json:"id"`
	NetworkID  int         `json:"networkId"`
	QuoteToken *QuoteToken `json:"quoteToken,omitempty"`
	Events     []*Event    `json:"events"`
}
