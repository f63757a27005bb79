package dto

type StartLinkResponse struct {
	LinkURL string `json:"link_url"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type WebhookReceivedResponse struct {
	Received bool `json:"received"`
}
