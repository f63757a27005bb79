package dto

type StartLinkRequest struct {
	TelegramUserID int64   `json:"telegram_user_id"`
	Username       *string `json:"username,omitempty"`
}

// VerifyLinkRequest is the body of the email form post. Accepted both as
// form-encoded (browser) and JSON.
type VerifyLinkRequest struct {
	Email string `json:"email" form:"email"`
}
