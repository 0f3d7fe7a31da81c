package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alim08/marketgql/pkg/validation"
)

// PriceAnomaly is emitted when a launchpad token's price moves more than the
// configured number of standard deviations away from its rolling mean.
type PriceAnomaly struct {
	TokenKey  string                  `json:"tokenKey" validate:"required"`
	Address   string                  `json:"address" validate:"required,address"`
	NetworkID int                     `json:"networkId" validate:"networkid"`
	Protocol  string                  `json:"protocol"`
	EventType LaunchpadTokenEventType `json:"eventType" validate:"omitempty,eventtype"`
	Price     float64                 `json:"price" validate:"gte=0"`
	Mean      float64                 `json:"mean"`
	StdDev    float64                 `json:"stdDev" validate:"gte=0"`
	ZScore    float64                 `json:"zScore"`
	Timestamp int64                   `json:"timestamp" validate:"required"` // milliseconds since epoch (UTC)
}

// Validate validates the anomaly
func (a PriceAnomaly) Validate() error {
	if errs := validation.ValidateStruct(a); len(errs) > 0 {
		return errs
	}
	return nil
}

// Time returns the detection time.
func (a PriceAnomaly) Time() time.Time {
	return time.UnixMilli(a.Timestamp)
}

// ToMap converts the anomaly to a map for Redis stream storage
func (a PriceAnomaly) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"token":     a.TokenKey,
		"address":   a.Address,
		"networkId": strconv.Itoa(a.NetworkID),
		"protocol":  a.Protocol,
		"eventType": string(a.EventType),
		"price":     strconv.FormatFloat(a.Price, 'f', -1, 64),
		"mean":      strconv.FormatFloat(a.Mean, 'f', -1, 64),
		"stddev":    strconv.FormatFloat(a.StdDev, 'f', -1, 64),
		"z":         strconv.FormatFloat(a.ZScore, 'f', 4, 64),
		"ts_ms":     strconv.FormatInt(a.Timestamp, 10),
	}
}

// ToJSON converts to JSON string
func (a PriceAnomaly) ToJSON() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("json marshal error: %w", err)
	}
	return string(data), nil
}

// PriceAnomalyFromJSON decodes and validates an anomaly.
func PriceAnomalyFromJSON(data string) (PriceAnomaly, error) {
	var a PriceAnomaly
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return a, fmt.Errorf("json unmarshal error: %w", err)
	}
	a.Address = validation.SanitizeAddress(a.Address)
	if err := a.Validate(); err != nil {
		return a, fmt.Errorf("validation failed: %w", err)
	}
	return a, nil
}
