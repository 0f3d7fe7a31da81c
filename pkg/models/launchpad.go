package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alim08/marketgql/pkg/validation"
)

// OnLaunchpadTokenEventBatchInput narrows the launchpad event stream. Both
// fields are optional; an empty input subscribes to every network and
// protocol.
type OnLaunchpadTokenEventBatchInput struct {
	NetworkID *int                    `json:"networkId,omitempty" validate:"omitempty,networkid"`
	Protocol  *LaunchpadTokenProtocol `json:"protocol,omitempty" validate:"omitempty,protocol"`
}

type OnLaunchpadTokenEventInput struct {
	Address   *string                  `json:"address,omitempty" validate:"omitempty,address"`
	NetworkID *int                     `json:"networkId,omitempty" validate:"omitempty,networkid"`
	Protocol  *LaunchpadTokenProtocol  `json:"protocol,omitempty" validate:"omitempty,protocol"`
	EventType *LaunchpadTokenEventType `json:"eventType,omitempty" validate:"omitempty,eventtype"`
}

// LaunchpadTokenEventOutput is one launchpad token event as delivered by the
// batch subscription.
type LaunchpadTokenEventOutput struct {
	Address               string                  `json:"address" validate:"required,address"`
	NetworkID             int                     `json:"networkId" validate:"networkid"`
	Protocol              string                  `json:"protocol" validate:"required"`
	EventType             LaunchpadTokenEventType `json:"eventType" validate:"required,eventtype"`
	LaunchpadName         string                  `json:"launchpadName"`
	Price                 *float64                `json:"price,omitempty" validate:"omitempty,gte=0"`
	MarketCap             *decimal.Decimal        `json:"marketCap,omitempty"`
	Liquidity             *decimal.Decimal        `json:"liquidity,omitempty"`
	Volume1               *float64                `json:"volume1,omitempty" validate:"omitempty,gte=0"`
	Holders               *int                    `json:"holders,omitempty" validate:"omitempty,gte=0"`
	BuyCount1             *int                    `json:"buyCount1,omitempty" validate:"omitempty,gte=0"`
	SellCount1            *int                    `json:"sellCount1,omitempty" validate:"omitempty,gte=0"`
	Transactions1         *int                    `json:"transactions1,omitempty" validate:"omitempty,gte=0"`
	SniperCount           *int                    `json:"sniperCount,omitempty" validate:"omitempty,gte=0"`
	SniperHeldPercentage  *float64                `json:"sniperHeldPercentage,omitempty" validate:"omitempty,percentage"`
	DevHeldPercentage     *float64                `json:"devHeldPercentage,omitempty" validate:"omitempty,percentage"`
	Top10HeldPercentage   *float64                `json:"top10HeldPercentage,omitempty" validate:"omitempty,percentage"`
	InsiderCount          *int                    `json:"insiderCount,omitempty" validate:"omitempty,gte=0"`
	InsiderHeldPercentage *float64                `json:"insiderHeldPercentage,omitempty" validate:"omitempty,percentage"`
	BundlerCount          *int                    `json:"bundlerCount,omitempty" validate:"omitempty,gte=0"`
	BundlerHeldPercentage *float64                `json:"bundlerHeldPercentage,omitempty" validate:"omitempty,percentage"`
	Token                 EnhancedToken           `json:"token"`
}

// Key identifies the token across networks, e.g. "1399811149:<mint>".
func (e LaunchpadTokenEventOutput) Key() string {
	return fmt.Sprintf("%d:%s", e.NetworkID, e.Address)
}

// Validate validates the event
func (e LaunchpadTokenEventOutput) Validate() error {
	if errs := validation.ValidateStruct(e); len(errs) > 0 {
		return errs
	}
	if e.Token.Address != "" && e.Token.Address != e.Address {
		return fmt.Errorf("token address %q does not match event address %q", e.Token.Address, e.Address)
	}
	return nil
}

// Sanitize trims strings, normalizes addresses and clamps percentages.
func (e *LaunchpadTokenEventOutput) Sanitize() {
	e.Address = validation.SanitizeAddress(e.Address)
	e.Protocol = validation.SanitizeString(e.Protocol)
	e.LaunchpadName = validation.SanitizeString(e.LaunchpadName)
	e.Token.Address = validation.SanitizeAddress(e.Token.Address)
	if e.Token.Name != nil {
		e.Token.Name = Ptr(validation.SanitizeString(*e.Token.Name))
	}
	if e.Token.Symbol != nil {
		e.Token.Symbol = Ptr(validation.SanitizeString(*e.Token.Symbol))
	}
	for _, p := range []**float64{
		&e.SniperHeldPercentage, &e.DevHeldPercentage, &e.Top10HeldPercentage,
		&e.InsiderHeldPercentage, &e.BundlerHeldPercentage,
	} {
		if *p != nil {
			*p = Ptr(validation.SanitizePercentage(**p))
		}
	}
}

// ToMap flattens the event for XADD. The indexed fields are duplicated next
// to the full JSON payload so consumers can filter without decoding.
func (e LaunchpadTokenEventOutput) ToMap(receivedAt time.Time) (map[string]interface{}, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	m := map[string]interface{}{
		"address":     e.Address,
		"networkId":   strconv.Itoa(e.NetworkID),
		"protocol":    e.Protocol,
		"eventType":   string(e.EventType),
		"payload":     string(payload),
		"received_ms": strconv.FormatInt(receivedAt.UnixMilli(), 10),
	}
	if e.Price != nil {
		m["price"] = strconv.FormatFloat(*e.Price, 'f', -1, 64)
	}
	return m, nil
}

// LaunchpadEventFromMap parses a Redis XMessage .Values written by ToMap.
// It returns the event and the time it was received.
func LaunchpadEventFromMap(m map[string]interface{}) (LaunchpadTokenEventOutput, time.Time, error) {
	var e LaunchpadTokenEventOutput

	schema := map[string]string{
		"address":     "string",
		"networkId":   "int",
		"eventType":   "string",
		"payload":     "string",
		"received_ms": "int",
	}
	if errs := validation.ValidateMap(m, schema); len(errs) > 0 {
		return e, time.Time{}, errs
	}

	payload, _ := m["payload"].(string)
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return e, time.Time{}, fmt.Errorf("payload decode error: %w", err)
	}

	if addr, _ := m["address"].(string); addr != e.Address {
		return e, time.Time{}, fmt.Errorf("address field %q does not match payload %q", addr, e.Address)
	}

	var receivedMs int64
	switch v := m["received_ms"].(type) {
	case string:
		receivedMs, _ = strconv.ParseInt(v, 10, 64)
	case int64:
		receivedMs = v
	case int:
		receivedMs = int64(v)
	case float64:
		receivedMs = int64(v)
	}

	e.Sanitize()
	if err := e.Validate(); err != nil {
		return e, time.Time{}, fmt.Errorf("validation failed: %w", err)
	}
	return e, time.UnixMilli(receivedMs), nil
}

// ToJSON converts to JSON string for pub/sub
func (e LaunchpadTokenEventOutput) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("json marshal error: %w", err)
	}
	return string(data), nil
}

// LaunchpadEventFromJSON decodes, sanitizes and validates one event.
func LaunchpadEventFromJSON(data string) (LaunchpadTokenEventOutput, error) {
	var e LaunchpadTokenEventOutput
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return e, fmt.Errorf("json unmarshal error: %w", err)
	}

	e.Sanitize()
	if err := e.Validate(); err != nil {
		return e, fmt.Errorf("validation failed: %w", err)
	}
	return e, nil
}
