package domain

// ManualItemRequest is an operator-entered recipient.
type ManualItemRequest struct {
	Name    string `json:"name" form:"name"`
	Mobile  string `json:"mobile" form:"mobile"`
	Message string `json:"message" form:"message"`
}

type EditItemRequest struct {
	ID     uint   `json:"id" form:"id"`
	Name   string `json:"name" form:"name"`
	Mobile string `json:"mobile" form:"mobile"`
}

type StartQueueRequest struct {
	MessageTemplate string `json:"messageTemplate" form:"messageTemplate"`
}

// DirectSendRequest sends immediately, bypassing the queue.
type DirectSendRequest struct {
	Name        string `json:"name" form:"name"`
	Mobile      string `json:"mobile" form:"mobile"`
	Message     string `json:"message" form:"message"`
	HasDocument bool   `json:"-" form:"-"`
}

// Upload is a document already saved under the tenant's upload folder.
type Upload struct {
	Path     string
	FileName string
}
