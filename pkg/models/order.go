package models

import (
	"github.com/shopspring/decimal"
)

type PlaceOrderInput struct {
	WalletAddress string           `json:"walletAddress" validate:"required,address"`
	NetworkID     int              `json:"networkId" validate:"networkid"`
	TokenAddress  string           `json:"tokenAddress" validate:"required,address"`
	Side          OrderSide        `json:"side" validate:"required,side"`
	Type          OrderType        `json:"type" validate:"required,ordertype"`
	Amount        decimal.Decimal  `json:"amount"`
	LimitPriceUsd *decimal.Decimal `json:"limitPriceUsd,omitempty"`
	SlippageBps   *int             `json:"slippageBps,omitempty" validate:"omitempty,min=0,max=10000"`
}

type Order struct {
	ID              string           `json:"id"`
	WalletAddress   string           `json:"walletAddress"`
	NetworkID       int              `json:"networkId"`
	TokenAddress    string           `json:"tokenAddress"`
	Side            OrderSide        `json:"side"`
	Type            OrderType        `json:"type"`
	Status          OrderStatus      `json:"status"`
	Amount          decimal.Decimal  `json:"amount"`
	FilledAmount    *decimal.Decimal `json:"filledAmount,omitempty"`
	LimitPriceUsd   *decimal.Decimal `json:"limitPriceUsd,omitempty"`
	AveragePriceUsd *decimal.Decimal `json:"averagePriceUsd,omitempty"`
	TransactionHash *string          `json:"transactionHash,omitempty"`
	CreatedAt       int64            `json:"createdAt"`
	UpdatedAt       *int64           `json:"updatedAt,omitempty"`
}
