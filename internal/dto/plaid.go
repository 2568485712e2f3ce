package dto

type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
}

type ExchangeRequest struct {
	PublicToken     string `json:"public_token" validate:"required"`
	InstitutionID   string `json:"institution_id"`
	InstitutionName string `json:"institution_name"`
}

type ItemResponse struct {
	ID              string  `json:"id"`
	InstitutionID   string  `json:"institution_id"`
	InstitutionName string  `json:"institution_name"`
	Status          string  `json:"status" example:"active"`
	ErrorCode       string  `json:"error_code,omitempty"`
	LastSyncedAt    *string `json:"last_synced_at"`
	CreatedAt       string  `json:"created_at"`
}

type ItemSyncResult struct {
	ItemID   string `json:"item_id"`
	Added    int    `json:"added"`
	Modified int    `json:"modified"`
	Removed  int    `json:"removed"`
	Error    string `json:"error,omitempty"`
}

type SyncResponse struct {
	Items    []ItemSyncResult `json:"items"`
	Added    int              `json:"added"`
	Modified int              `json:"modified"`
	Removed  int              `json:"removed"`
	Failed   int              `json:"failed"`
}
