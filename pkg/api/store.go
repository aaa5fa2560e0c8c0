package api

import (
	"context"
	stdsql "database/sql"

	"github.com/stagehand-run/stagehand/pkg/models"
)

// apiStore is the slice of *store.Store the HTTP layer depends on, wide
// enough to cover auth lookups, business/stage/template CRUD, and
// conversation listing, narrow enough to keep pkg/api decoupled from
// pkg/store's concrete type.
type apiStore interface {
	DB() *stdsql.DB

	CreateBusiness(ctx context.Context, b models.Business) (models.Business, error)
	GetBusiness(ctx context.Context, id string) (models.Business, error)
	LookupBusinessByKey(ctx context.Context, apiKey string) (models.Business, error)
	GetUser(ctx context.Context, id string) (models.User, error)

	CreateStage(ctx context.Context, st models.Stage) (models.Stage, error)
	UpdateStage(ctx context.Context, st models.Stage) error
	GetStage(ctx context.Context, id string) (models.Stage, error)
	ListStages(ctx context.Context, businessID string) ([]models.Stage, error)
	DeleteStage(ctx context.Context, id string) error

	CreateTemplate(ctx context.Context, t models.Template) (models.Template, error)
	UpdateTemplate(ctx context.Context, t models.Template) error
	GetTemplate(ctx context.Context, id string) (models.Template, error)
	ListTemplates(ctx context.Context, businessID string, templateType models.TemplateType) ([]models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error

	ListConversationsForUser(ctx context.Context, businessID, userID string) ([]models.Conversation, error)
	OpenOrResumeConversation(ctx context.Context, businessID, userID, agentID, sessionID string) (models.Conversation, error)
}
