package integration

import "encoding/json"

// Result is the structured outcome shared by every operation response
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Failed builds an unsuccessful Result from an error
func Failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// SendChatMessageRequest asks a platform to post a chat message
type SendChatMessageRequest struct {
	Message          string `json:"message"`
	SendAsBot        bool   `json:"sendAsBot,omitempty"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
}

// SendChatMessageResponse is the outcome of a chat message send
type SendChatMessageResponse struct {
	Result
}

// CurrencyMode selects how an adjustment is applied
type CurrencyMode string

const (
	CurrencyModeAdjust CurrencyMode = "adjust"
	CurrencyModeSet    CurrencyMode = "set"
)

// GetUserCurrencyRequest reads one currency balance of a viewer
type GetUserCurrencyRequest struct {
	Username   string `json:"username"`
	CurrencyID string `json:"currencyId"`
}

// AdjustUserCurrencyRequest changes one currency balance of a viewer
type AdjustUserCurrencyRequest struct {
	Username   string       `json:"username"`
	CurrencyID string       `json:"currencyId"`
	Amount     int64        `json:"amount"`
	Mode       CurrencyMode `json:"mode,omitempty"`
}

// UserCurrencyResponse carries the balance after a read or adjustment
type UserCurrencyResponse struct {
	Result
	Amount int64 `json:"amount"`
}

// GetUserMetadataRequest reads one metadata key of a viewer
type GetUserMetadataRequest struct {
	Username string `json:"username"`
	Key      string `json:"key"`
}

// UserMetadataResponse carries a metadata value, absent when unset
type UserMetadataResponse struct {
	Result
	Value json.RawMessage `json:"value,omitempty"`
}

// SetUserMetadataRequest writes one metadata key of a viewer
type SetUserMetadataRequest struct {
	Username string          `json:"username"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
}

// SetUserMetadataResponse is the outcome of a metadata write
type SetUserMetadataResponse struct {
	Result
}
