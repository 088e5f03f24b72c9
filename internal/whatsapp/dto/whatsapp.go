package dto

type SendTextRequest struct {
	To   string `json:"to" binding:"required,min=6"`
	Text string `json:"text" binding:"required,min=1,max=4096"`
}

type SendDocumentRequest struct {
	To          string `json:"to" binding:"required,min=6"`
	DocumentURL string `json:"documentUrl" binding:"required,url"`
	Filename    string `json:"filename" binding:"required,min=1"`
	Caption     string `json:"caption" binding:"max=1024"`
}

type SendResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId"`
	EventID   string `json:"eventId"`
}

type StatusResponse struct {
	Connected         bool    `json:"connected"`
	ExternalAccountID *string `json:"externalAccountId"`
}

// WebhookResult counts what one webhook delivery produced.
type WebhookResult struct {
	Statuses int `json:"statuses"`
	Recorded int `json:"recorded"`
	Dropped  int `json:"dropped"`
	Failed   int `json:"failed"`
}
