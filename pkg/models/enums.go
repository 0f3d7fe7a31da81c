package models

import (
	"encoding/json"
	"fmt"

	"github.com/alim08/marketgql/pkg/validation"
)

// enumValues lists every mirrored enum by its GraphQL name.
var enumValues = map[string][]string{}

func registerEnum[T ~string](name, tag string, values ...T) map[T]bool {
	set := make(map[T]bool, len(values))
	names := make([]string, 0, len(values))
	for _, v := range values {
		set[v] = true
		names = append(names, string(v))
	}
	enumValues[name] = names
	if tag != "" {
		validation.RegisterEnum(tag, func(s string) bool { return set[T(s)] })
	}
	return set
}

func unmarshalEnum[T ~string](b []byte, dst *T, set map[T]bool, name string) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !set[T(s)] {
		return fmt.Errorf("%s: unknown value %q", name, s)
	}
	*dst = T(s)
	return nil
}

// EnumValues returns the values of the named GraphQL enum.
func EnumValues(name string) []string {
	return append([]string(nil), enumValues[name]...)
}

// EnumNames returns the GraphQL names of all mirrored enums.
func EnumNames() []string {
	names := make([]string, 0, len(enumValues))
	for n := range enumValues {
		names = append(names, n)
	}
	return names
}

type LaunchpadTokenEventType string

const (
	LaunchpadTokenEventTypeDeployed  LaunchpadTokenEventType = "Deployed"
	LaunchpadTokenEventTypeCreated   LaunchpadTokenEventType = "Created"
	LaunchpadTokenEventTypeUpdated   LaunchpadTokenEventType = "Updated"
	LaunchpadTokenEventTypeCompleted LaunchpadTokenEventType = "Completed"
	LaunchpadTokenEventTypeMigrated  LaunchpadTokenEventType = "Migrated"
)

var launchpadTokenEventTypes = registerEnum("LaunchpadTokenEventType", "eventtype",
	LaunchpadTokenEventTypeDeployed, LaunchpadTokenEventTypeCreated, LaunchpadTokenEventTypeUpdated,
	LaunchpadTokenEventTypeCompleted, LaunchpadTokenEventTypeMigrated)

func (e LaunchpadTokenEventType) IsValid() bool  { return launchpadTokenEventTypes[e] }
func (e LaunchpadTokenEventType) String() string { return string(e) }
func (e *LaunchpadTokenEventType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, launchpadTokenEventTypes, "LaunchpadTokenEventType")
}

type LaunchpadTokenProtocol string

const (
	LaunchpadTokenProtocolPump             LaunchpadTokenProtocol = "Pump"
	LaunchpadTokenProtocolPumpAmm          LaunchpadTokenProtocol = "PumpAmm"
	LaunchpadTokenProtocolBonk             LaunchpadTokenProtocol = "Bonk"
	LaunchpadTokenProtocolMoonshotV2       LaunchpadTokenProtocol = "MoonshotV2"
	LaunchpadTokenProtocolVirtualsProtocol LaunchpadTokenProtocol = "VirtualsProtocol"
	LaunchpadTokenProtocolFourMeme         LaunchpadTokenProtocol = "FourMeme"
	LaunchpadTokenProtocolBaseApp          LaunchpadTokenProtocol = "BaseApp"
	LaunchpadTokenProtocolZora             LaunchpadTokenProtocol = "Zora"
)

var launchpadTokenProtocols = registerEnum("LaunchpadTokenProtocol", "protocol",
	LaunchpadTokenProtocolPump, LaunchpadTokenProtocolPumpAmm, LaunchpadTokenProtocolBonk,
	LaunchpadTokenProtocolMoonshotV2, LaunchpadTokenProtocolVirtualsProtocol, LaunchpadTokenProtocolFourMeme,
	LaunchpadTokenProtocolBaseApp, LaunchpadTokenProtocolZora)

func (e LaunchpadTokenProtocol) IsValid() bool  { return launchpadTokenProtocols[e] }
func (e LaunchpadTokenProtocol) String() string { return string(e) }
func (e *LaunchpadTokenProtocol) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, launchpadTokenProtocols, "LaunchpadTokenProtocol")
}

type RankingDirection string

const (
	RankingDirectionAsc  RankingDirection = "ASC"
	RankingDirectionDesc RankingDirection = "DESC"
)

var rankingDirections = registerEnum("RankingDirection", "direction", RankingDirectionAsc, RankingDirectionDesc)

func (e RankingDirection) IsValid() bool  { return rankingDirections[e] }
func (e RankingDirection) String() string { return string(e) }
func (e *RankingDirection) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, rankingDirections, "RankingDirection")
}

type TokenRankingAttribute string

const (
	TokenRankingAttributeCreatedAt         TokenRankingAttribute = "createdAt"
	TokenRankingAttributeHolders           TokenRankingAttribute = "holders"
	TokenRankingAttributeLiquidity         TokenRankingAttribute = "liquidity"
	TokenRankingAttributeMarketCap         TokenRankingAttribute = "marketCap"
	TokenRankingAttributePriceUSD          TokenRankingAttribute = "priceUSD"
	TokenRankingAttributeVolume24          TokenRankingAttribute = "volume24"
	TokenRankingAttributeChange24          TokenRankingAttribute = "change24"
	TokenRankingAttributeTxnCount24        TokenRankingAttribute = "txnCount24"
	TokenRankingAttributeTrendingScore     TokenRankingAttribute = "trendingScore"
	TokenRankingAttributeGraduationPercent TokenRankingAttribute = "graduationPercent"
)

var tokenRankingAttributes = registerEnum("TokenRankingAttribute", "rankattr",
	TokenRankingAttributeCreatedAt, TokenRankingAttributeHolders, TokenRankingAttributeLiquidity,
	TokenRankingAttributeMarketCap, TokenRankingAttributePriceUSD, TokenRankingAttributeVolume24,
	TokenRankingAttributeChange24, TokenRankingAttributeTxnCount24, TokenRankingAttributeTrendingScore,
	TokenRankingAttributeGraduationPercent)

func (e TokenRankingAttribute) IsValid() bool  { return tokenRankingAttributes[e] }
func (e TokenRankingAttribute) String() string { return string(e) }
func (e *TokenRankingAttribute) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, tokenRankingAttributes, "TokenRankingAttribute")
}

type TokenPairStatisticsType string

const (
	TokenPairStatisticsTypeFiltered   TokenPairStatisticsType = "FILTERED"
	TokenPairStatisticsTypeUnfiltered TokenPairStatisticsType = "UNFILTERED"
)

var tokenPairStatisticsTypes = registerEnum("TokenPairStatisticsType", "",
	TokenPairStatisticsTypeFiltered, TokenPairStatisticsTypeUnfiltered)

func (e TokenPairStatisticsType) IsValid() bool  { return tokenPairStatisticsTypes[e] }
func (e TokenPairStatisticsType) String() string { return string(e) }
func (e *TokenPairStatisticsType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, tokenPairStatisticsTypes, "TokenPairStatisticsType")
}

type QuoteToken string

const (
	QuoteTokenToken0 QuoteToken = "token0"
	QuoteTokenToken1 QuoteToken = "token1"
)

var quoteTokens = registerEnum("QuoteToken", "", QuoteTokenToken0, QuoteTokenToken1)

func (e QuoteToken) IsValid() bool  { return quoteTokens[e] }
func (e QuoteToken) String() string { return string(e) }
func (e *QuoteToken) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, quoteTokens, "QuoteToken")
}

type EventType string

const (
	EventTypeSwap               EventType = "Swap"
	EventTypeMint               EventType = "Mint"
	EventTypeBurn               EventType = "Burn"
	EventTypeSync               EventType = "Sync"
	EventTypePoolBalanceChanged EventType = "PoolBalanceChanged"
)

var eventTypes = registerEnum("EventType", "",
	EventTypeSwap, EventTypeMint, EventTypeBurn, EventTypeSync, EventTypePoolBalanceChanged)

func (e EventType) IsValid() bool  { return eventTypes[e] }
func (e EventType) String() string { return string(e) }
func (e *EventType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, eventTypes, "EventType")
}

type WebhookType string

const (
	WebhookTypePriceEvent     WebhookType = "PRICE_EVENT"
	WebhookTypeTokenPairEvent WebhookType = "TOKEN_PAIR_EVENT"
	WebhookTypeRawTransaction WebhookType = "RAW_TRANSACTION"
	WebhookTypeNftEvent       WebhookType = "NFT_EVENT"
)

var webhookTypes = registerEnum("WebhookType", "",
	WebhookTypePriceEvent, WebhookTypeTokenPairEvent, WebhookTypeRawTransaction, WebhookTypeNftEvent)

func (e WebhookType) IsValid() bool  { return webhookTypes[e] }
func (e WebhookType) String() string { return string(e) }
func (e *WebhookType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, webhookTypes, "WebhookType")
}

type AlertRecurrence string

const (
	AlertRecurrenceOnce       AlertRecurrence = "ONCE"
	AlertRecurrenceIndefinite AlertRecurrence = "INDEFINITE"
)

var alertRecurrences = registerEnum("AlertRecurrence", "recurrence", AlertRecurrenceOnce, AlertRecurrenceIndefinite)

func (e AlertRecurrence) IsValid() bool  { return alertRecurrences[e] }
func (e AlertRecurrence) String() string { return string(e) }
func (e *AlertRecurrence) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, alertRecurrences, "AlertRecurrence")
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

var orderSides = registerEnum("OrderSide", "side", OrderSideBuy, OrderSideSell)

func (e OrderSide) IsValid() bool  { return orderSides[e] }
func (e OrderSide) String() string { return string(e) }
func (e *OrderSide) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, orderSides, "OrderSide")
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

var orderTypes = registerEnum("OrderType", "ordertype", OrderTypeMarket, OrderTypeLimit)

func (e OrderType) IsValid() bool  { return orderTypes[e] }
func (e OrderType) String() string { return string(e) }
func (e *OrderType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, orderTypes, "OrderType")
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

var orderStatuses = registerEnum("OrderStatus", "",
	OrderStatusPending, OrderStatusOpen, OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed)

func (e OrderStatus) IsValid() bool  { return orderStatuses[e] }
func (e OrderStatus) String() string { return string(e) }
func (e *OrderStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, orderStatuses, "OrderStatus")
}

// Terminal reports whether the order can no longer change.
func (e OrderStatus) Terminal() bool {
	return e == OrderStatusFilled || e == OrderStatusCancelled || e == OrderStatusFailed
}

type PointEventKind string

const (
	PointEventKindTrade    PointEventKind = "TRADE"
	PointEventKindReferral PointEventKind = "REFERRAL"
	PointEventKindBonus    PointEventKind = "BONUS"
	PointEventKindQuest    PointEventKind = "QUEST"
)

var pointEventKinds = registerEnum("PointEventKind", "",
	PointEventKindTrade, PointEventKindReferral, PointEventKindBonus, PointEventKindQuest)

func (e PointEventKind) IsValid() bool  { return pointEventKinds[e] }
func (e PointEventKind) String() string { return string(e) }
func (e *PointEventKind) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, pointEventKinds, "PointEventKind")
}

// LinkPurpose is the federation link__Purpose enum.
type LinkPurpose string

const (
	LinkPurposeSecurity  LinkPurpose = "SECURITY"
	LinkPurposeExecution LinkPurpose = "EXECUTION"
)

var linkPurposes = registerEnum("link__Purpose", "", LinkPurposeSecurity, LinkPurposeExecution)

func (e LinkPurpose) IsValid() bool  { return linkPurposes[e] }
func (e LinkPurpose) String() string { return string(e) }
func (e *LinkPurpose) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, linkPurposes, "link__Purpose")
}
