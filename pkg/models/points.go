package models

type PointEvent struct {
	ID            string         `json:"id"`
	WalletAddress string         `json:"walletAddress"`
	Kind          PointEventKind `json:"kind"`
	Points        float64        `json:"points"`
	Season        int            `json:"season"`
	Reason        *string        `json:"reason,omitempty"`
	Timestamp     int64          `json:"timestamp"`
}

type PointEventConnection struct {
	Items  []PointEvent `json:"items"`
	Cursor *string      `json:"cursor,omitempty"`
}

type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	WalletAddress string  `json:"walletAddress"`
	Points        float64 `json:"points"`
	Season        int     `json:"season"`
	VolumeUsd     *string `json:"volumeUsd,omitempty"`
}
