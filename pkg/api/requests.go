package api

// CreateBusinessRequest is the body of POST /businesses.
type CreateBusinessRequest struct {
	OwnerID             string `json:"owner_id"`
	BusinessName        string `json:"business_name"`
	BusinessDescription string `json:"business_description,omitempty"`
	Address             string `json:"address,omitempty"`
	PhoneNumber         string `json:"phone_number,omitempty"`
	Website             string `json:"website,omitempty"`
}

// SaveConfigRequest is the body of POST /api/save-config.
type SaveConfigRequest struct {
	UserID          string `json:"userId"`
	BusinessID      string `json:"businessId"`
	BusinessAPIKey  string `json:"businessApiKey"`
}

// StageRequest is the body of POST /stages and PUT /stages/:id.
type StageRequest struct {
	BusinessID                string `json:"business_id"`
	AgentID                   string `json:"agent_id,omitempty"`
	StageName                 string `json:"stage_name"`
	StageDescription          string `json:"stage_description"`
	StageType                 string `json:"stage_type"`
	StageSelectionTemplateID  string `json:"stage_selection_template_id"`
	DataExtractionTemplateID  string `json:"data_extraction_template_id"`
	ResponseGenerationTmplID  string `json:"response_generation_template_id"`
}

// TemplateRequest is the body of POST /templates and PUT /templates/:id.
type TemplateRequest struct {
	BusinessID   string `json:"business_id"`
	TemplateName string `json:"template_name"`
	TemplateType string `json:"template_type"`
	Content      string `json:"content"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// MessageRequest is the body of POST /message.
type MessageRequest struct {
	BusinessID     string `json:"business_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	SenderType     string `json:"sender_type,omitempty"`
}
