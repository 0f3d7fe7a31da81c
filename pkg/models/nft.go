package models

import (
	"github.com/shopspring/decimal"
)

type NftAsset struct {
	ID            string  `json:"id"`
	Address       string  `json:"address"`
	TokenID       string  `json:"tokenId"`
	NetworkID     int     `json:"networkId"`
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	OriginalImage *string `json:"originalImage,omitempty"`
	Attributes    JSON    `json:"attributes,omitempty"`
}

type NftPool struct {
	ID                string           `json:"id"`
	PoolAddress       string           `json:"poolAddress"`
	CollectionAddress string           `json:"collectionAddress"`
	NetworkID         int              `json:"networkId"`
	ExchangeAddress   string           `json:"exchangeAddress"`
	NftAssets         []*NftAsset      `json:"nftAssets,omitempty"`
	FloorNbt          *decimal.Decimal `json:"floorNbt,omitempty"`
	FloorUsd          *decimal.Decimal `json:"floorUsd,omitempty"`
	VolumeNbtAll      *decimal.Decimal `json:"volumeNbtAll,omitempty"`
	VolumeUsdAll      *decimal.Decimal `json:"volumeUsdAll,omitempty"`
	NftsInPool        *int             `json:"nftsInPool,omitempty"`
}

type NftAssetsConnection struct {
	Items  []*NftAsset `json:"items"`
	Cursor *string     `json:"cursor,omitempty"`
}
