package models

type Webhook struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	WebhookType     WebhookType     `json:"webhookType"`
	CallbackURL     string          `json:"callbackUrl"`
	Status          string          `json:"status"`
	AlertRecurrence AlertRecurrence `json:"alertRecurrence"`
	Conditions      JSON            `json:"conditions,omitempty"`
	Created         int64           `json:"created"`
}

type GetWebhooksResponse struct {
	Items  []*Webhook `json:"items,omitempty"`
	Cursor *string    `json:"cursor,omitempty"`
}

type PriceEventWebhookInput struct {
	Name            string          `json:"name" validate:"required,max=128"`
	CallbackURL     string          `json:"callbackUrl" validate:"required,url"`
	SecurityToken   string          `json:"securityToken" validate:"required"`
	AlertRecurrence AlertRecurrence `json:"alertRecurrence" validate:"required,recurrence"`
	TokenAddress    string          `json:"tokenAddress" validate:"required,address"`
	NetworkID       int             `json:"networkId" validate:"networkid"`
	PriceUsdGt      *float64        `json:"priceUsdGt,omitempty"`
	PriceUsdLt      *float64        `json:"priceUsdLt,omitempty"`
}

type CreateWebhooksInput struct {
	PriceWebhooksInput []PriceEventWebhookInput `json:"priceWebhooksInput,omitempty" validate:"omitempty,dive"`
}

type CreateWebhooksOutput struct {
	PriceWebhooks []*Webhook `json:"priceWebhooks"`
}

type DeleteWebhooksInput struct {
	WebhookIDs []string `json:"webhookIds" validate:"required,min=1"`
}

type DeleteWebhooksOutput struct {
	DeletedIDs []*string `json:"deletedIds,omitempty"`
}
