package models

import (
	"github.com/shopspring/decimal"
)

type Network struct {
	ID               int     `json:"id"`
	Name             string  `json:"name"`
	NetworkShortName *string `json:"networkShortName,omitempty"`
}

type SocialLinks struct {
	Twitter  *string `json:"twitter,omitempty"`
	Telegram *string `json:"telegram,omitempty"`
	Website  *string `json:"website,omitempty"`
	Discord  *string `json:"discord,omitempty"`
}

type TokenInfo struct {
	ID                string           `json:"id"`
	Address           string           `json:"address"`
	NetworkID         int              `json:"networkId"`
	Name              *string          `json:"name,omitempty"`
	Symbol            string           `json:"symbol"`
	Description       *string          `json:"description,omitempty"`
	ImageThumbURL     *string          `json:"imageThumbUrl,omitempty"`
	ImageLargeURL     *string          `json:"imageLargeUrl,omitempty"`
	CirculatingSupply *decimal.Decimal `json:"circulatingSupply,omitempty"`
	TotalSupply       *decimal.Decimal `json:"totalSupply,omitempty"`
	IsScam            *bool            `json:"isScam,omitempty"`
}

// LaunchpadData describes a token's bonding-curve launch.
type LaunchpadData struct {
	LaunchpadName       *string  `json:"launchpadName,omitempty"`
	LaunchpadProtocol   *string  `json:"launchpadProtocol,omitempty"`
	GraduationPercent   *float64 `json:"graduationPercent,omitempty"`
	PoolAddress         *string  `json:"poolAddress,omitempty"`
	Completed           *bool    `json:"completed,omitempty"`
	CompletedAt         *int64   `json:"completedAt,omitempty"`
	Migrated            *bool    `json:"migrated,omitempty"`
	MigratedAt          *int64   `json:"migratedAt,omitempty"`
	MigratedPoolAddress *string  `json:"migratedPoolAddress,omitempty"`
}

type Exchange struct {
	ID        string  `json:"id"`
	Address   string  `json:"address"`
	NetworkID int     `json:"networkId"`
	Name      *string `json:"name,omitempty"`
	TradeURL  *string `json:"tradeUrl,omitempty"`
}

type EnhancedToken struct {
	ID                string           `json:"id"`
	Address           string           `json:"address" validate:"required,address"`
	NetworkID         int              `json:"networkId" validate:"networkid"`
	Name              *string          `json:"name,omitempty"`
	Symbol            *string          `json:"symbol,omitempty"`
	Decimals          int              `json:"decimals" validate:"gte=0,lte=36"`
	TotalSupply       *decimal.Decimal `json:"totalSupply,omitempty"`
	CirculatingSupply *decimal.Decimal `json:"circulatingSupply,omitempty"`
	ImageThumbURL     *string          `json:"imageThumbUrl,omitempty"`
	CreatedAt         *int64           `json:"createdAt,omitempty" validate:"omitempty,unixtime"`
	CreatorAddress    *string          `json:"creatorAddress,omitempty"`
	IsScam            *bool            `json:"isScam,omitempty"`
	Info              *TokenInfo       `json:"info,omitempty"`
	SocialLinks       *SocialLinks     `json:"socialLinks,omitempty"`
	Launchpad         *LaunchpadData   `json:"launchpad,omitempty"`
	Exchanges         []Exchange       `json:"exchanges,omitempty"`
}

// DisplaySymbol returns the symbol or a shortened address when the token has none.
func (t EnhancedToken) DisplaySymbol() string {
	if t.Symbol != nil && *t.Symbol != "" {
		return *t.Symbol
	}
	if len(t.Address) > 10 {
		return t.Address[:6] + "…" + t.Address[len(t.Address)-4:]
	}
	return t.Address
}

type Price struct {
	Address     string  `json:"address"`
	NetworkID   int     `json:"networkId"`
	PriceUsd    float64 `json:"priceUsd"`
	Timestamp   *int64  `json:"timestamp,omitempty"`
	BlockNumber *int64  `json:"blockNumber,omitempty"`
}

type TokenInput struct {
	Address   string `json:"address" validate:"required,address"`
	NetworkID int    `json:"networkId" validate:"networkid"`
}

type GetPriceInput struct {
	Address   string `json:"address" validate:"required,address"`
	NetworkID int    `json:"networkId" validate:"networkid"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// NumberFilter bounds a numeric attribute; unset bounds are omitted.
type NumberFilter struct {
	Gt  *float64 `json:"gt,omitempty"`
	Gte *float64 `json:"gte,omitempty"`
	Lt  *float64 `json:"lt,omitempty"`
	Lte *float64 `json:"lte,omitempty"`
}

// Matches reports whether v satisfies every bound that is set.
func (f *NumberFilter) Matches(v float64) bool {
	if f == nil {
		return true
	}
	if f.Gt != nil && !(v > *f.Gt) {
		return false
	}
	if f.Gte != nil && !(v >= *f.Gte) {
		return false
	}
	if f.Lt != nil && !(v < *f.Lt) {
		return false
	}
	if f.Lte != nil && !(v <= *f.Lte) {
		return false
	}
	return true
}

type TokenFilters struct {
	Network            []int         `json:"network,omitempty" validate:"omitempty,dive,networkid"`
	Liquidity          *NumberFilter `json:"liquidity,omitempty"`
	MarketCap          *NumberFilter `json:"marketCap,omitempty"`
	Volume24           *NumberFilter `json:"volume24,omitempty"`
	Change24           *NumberFilter `json:"change24,omitempty"`
	Holders            *NumberFilter `json:"holders,omitempty"`
	CreatedAt          *NumberFilter `json:"createdAt,omitempty"`
	LaunchpadProtocol  []string      `json:"launchpadProtocol,omitempty" validate:"omitempty,dive,protocol"`
	LaunchpadCompleted *bool         `json:"launchpadCompleted,omitempty"`
	LaunchpadMigrated  *bool         `json:"launchpadMigrated,omitempty"`
	TrendingIgnored    *bool         `json:"trendingIgnored,omitempty"`
	PotentialScam      *bool         `json:"potentialScam,omitempty"`
	IncludeScams       *bool         `json:"includeScams,omitempty"`
	ExchangeAddress    []string      `json:"exchangeAddress,omitempty" validate:"omitempty,dive,address"`
}

type TokenRanking struct {
	Attribute *TokenRankingAttribute `json:"attribute,omitempty" validate:"omitempty,rankattr"`
	Direction *RankingDirection      `json:"direction,omitempty" validate:"omitempty,direction"`
}

// RankBy is shorthand for a fully specified ranking.
func RankBy(attr TokenRankingAttribute, dir RankingDirection) TokenRanking {
	return TokenRanking{Attribute: &attr, Direction: &dir}
}

type TokenFilterResult struct {
	Token           *EnhancedToken   `json:"token,omitempty"`
	PriceUSD        *decimal.Decimal `json:"priceUSD,omitempty"`
	MarketCap       *decimal.Decimal `json:"marketCap,omitempty"`
	Liquidity       *decimal.Decimal `json:"liquidity,omitempty"`
	Volume24        *decimal.Decimal `json:"volume24,omitempty"`
	Change1         *decimal.Decimal `json:"change1,omitempty"`
	Change24        *decimal.Decimal `json:"change24,omitempty"`
	TxnCount24      *float64         `json:"txnCount24,omitempty"`
	Holders         *int             `json:"holders,omitempty"`
	BuyCount24      *int             `json:"buyCount24,omitempty"`
	SellCount24     *int             `json:"sellCount24,omitempty"`
	UniqueBuys24    *int             `json:"uniqueBuys24,omitempty"`
	UniqueSells24   *int             `json:"uniqueSells24,omitempty"`
	CreatedAt       *int64           `json:"createdAt,omitempty"`
	LastTransaction *int64           `json:"lastTransaction,omitempty"`
	QuoteToken      *string          `json:"quoteToken,omitempty"`
	IsScam          *bool            `json:"isScam,omitempty"`
	Pair            *Pair            `json:"pair,omitempty"`
}

// TokenFilterConnection is one page of filterTokens results. Results may
// contain nil entries; the list is nullable item-wise upstream.
type TokenFilterConnection struct {
	Results []*TokenFilterResult `json:"results"`
	Count   *int                 `json:"count,omitempty"`
	Page    *int                 `json:"page,omitempty"`
}

// Tokens returns the non-nil results in order.
func (c TokenFilterConnection) Tokens() []TokenFilterResult {
	out := make([]TokenFilterResult, 0, len(c.Results))
	for _, r := range c.Results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
