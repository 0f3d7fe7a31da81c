package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BridgeQuoteInput struct {
	FromNetworkID    int             `json:"fromNetworkId" validate:"networkid"`
	ToNetworkID      int             `json:"toNetworkId" validate:"networkid,nefield=FromNetworkID"`
	FromTokenAddress string          `json:"fromTokenAddress" validate:"required,address"`
	ToTokenAddress   string          `json:"toTokenAddress" validate:"required,address"`
	Amount           decimal.Decimal `json:"amount"`
	WalletAddress    *string         `json:"walletAddress,omitempty" validate:"omitempty,address"`
}

type BridgeQuote struct {
	ID               string           `json:"id"`
	FromNetworkID    int              `json:"fromNetworkId"`
	ToNetworkID      int              `json:"toNetworkId"`
	FromTokenAddress string           `json:"fromTokenAddress"`
	ToTokenAddress   string           `json:"toTokenAddress"`
	AmountIn         decimal.Decimal  `json:"amountIn"`
	AmountOut        decimal.Decimal  `json:"amountOut"`
	FeeUsd           *decimal.Decimal `json:"feeUsd,omitempty"`
	EstimatedSeconds *int             `json:"estimatedSeconds,omitempty"`
	ExpiresAt        int64            `json:"expiresAt"`
	Route            JSON             `json:"route,omitempty"`
}

// Expired reports whether the quote can no longer be executed at now.
func (q BridgeQuote) Expired(now time.Time) bool {
	return now.Unix() >= q.ExpiresAt
}
