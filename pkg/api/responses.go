package api

// CreateBusinessResponse is returned by POST /businesses. The API key is
// returned exactly once, at creation: it is never re-derivable afterward.
type CreateBusinessResponse struct {
	BusinessID string `json:"business_id"`
	APIKey     string `json:"api_key"`
}

// BusinessResponse is returned by GET /businesses/:id.
type BusinessResponse struct {
	BusinessID  string `json:"business_id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"business_name"`
	Description string `json:"business_description,omitempty"`
	Address     string `json:"address,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Website     string `json:"website,omitempty"`
}

// StageResponse is returned by the stage CRUD endpoints.
type StageResponse struct {
	StageID                   string `json:"stage_id"`
	BusinessID                string `json:"business_id"`
	AgentID                   string `json:"agent_id,omitempty"`
	StageName                 string `json:"stage_name"`
	StageDescription          string `json:"stage_description"`
	StageType                 string `json:"stage_type"`
	StageSelectionTemplateID  string `json:"stage_selection_template_id"`
	DataExtractionTemplateID  string `json:"data_extraction_template_id"`
	ResponseGenerationTmplID  string `json:"response_generation_template_id"`
}

// TemplateResponse is returned by the template CRUD endpoints.
type TemplateResponse struct {
	TemplateID   string `json:"template_id"`
	BusinessID   string `json:"business_id"`
	TemplateName string `json:"template_name"`
	TemplateType string `json:"template_type"`
	Content      string `json:"content"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// MessageResponse is returned by POST /message.
type MessageResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// ConversationResponse is one entry in the list returned by
// GET /conversations/:user_id.
type ConversationResponse struct {
	ConversationID string `json:"conversation_id"`
	BusinessID     string `json:"business_id"`
	UserID         string `json:"user_id"`
	CurrentStageID string `json:"current_stage_id,omitempty"`
	Status         string `json:"status"`
	StartTime      string `json:"start_time"`
	LastUpdated    string `json:"last_updated"`
}

// ConversationsResponse wraps the list returned by
// GET /conversations/:user_id.
type ConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}
