package dto

type ChatRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

type ChatResponse struct {
	Reply     string `json:"reply"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
}

type ChatMessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role" example:"assistant"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type ChatHistoryResponse struct {
	Messages []ChatMessageResponse `json:"messages"`
}
