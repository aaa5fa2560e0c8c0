// Package stage implements the conversation stage state machine: the
// bootstrap stage a new conversation starts in, and the transition rule
// that every stage change must satisfy (spec.md section 4.2, section 9
// Open Question 4).
package stage

import (
	"context"
	"fmt"

	"github.com/stagehand-run/stagehand/pkg/apierr"
	"github.com/stagehand-run/stagehand/pkg/models"
)

type dataStore interface {
	ListStages(ctx context.Context, businessID string) ([]models.Stage, error)
	GetStage(ctx context.Context, id string) (models.Stage, error)
	ListStageTransitions(ctx context.Context, fromStageID string) ([]models.StageTransition, error)
	SetConversationStage(ctx context.Context, conversationID, stageID, llmCallID string) error
	RecordAuditLog(ctx context.Context, a models.AuditLog) error
}

// Machine enforces the allowed-transition rule and records every stage
// change to the audit trail.
type Machine struct {
	store dataStore
}

// New builds a Machine backed by store.
func New(store dataStore) *Machine {
	return &Machine{store: store}
}

// Bootstrap selects the stage a brand-new conversation starts in: the one
// with stage_type "first_interaction" if the business configured one,
// otherwise the business's earliest-created stage.
func (m *Machine) Bootstrap(ctx context.Context, businessID string) (models.Stage, error) {
	stages, err := m.store.ListStages(ctx, businessID)
	if err != nil {
		return models.Stage{}, err
	}
	if len(stages) == 0 {
		return models.Stage{}, apierr.New(apierr.InvalidRequest, "business has no stages configured")
	}
	for _, s := range stages {
		if s.StageType == "first_interaction" {
			return s, nil
		}
	}
	return stages[0], nil
}

// Allowed reports whether a transition from fromStageID to toStageID is
// permitted. A business that has configured zero explicit transitions out
// of fromStageID is treated as unrestricted: any stage in the same
// business may follow (spec.md section 9, Open Question 4). Once at least
// one transition is configured for fromStageID, only those targets (plus
// staying in the same stage) are allowed.
func (m *Machine) Allowed(ctx context.Context, fromStageID, toStageID string) (bool, error) {
	if fromStageID == toStageID {
		return true, nil
	}
	transitions, err := m.store.ListStageTransitions(ctx, fromStageID)
	if err != nil {
		return false, err
	}
	if len(transitions) == 0 {
		return true, nil
	}
	for _, t := range transitions {
		if t.ToStageID == toStageID {
			return true, nil
		}
	}
	return false, nil
}

// Transition moves a conversation to toStageID after checking Allowed,
// records the llmCallID that produced the decision, and appends an audit
// log entry. Returns apierr.Conflict if the transition is not permitted.
func (m *Machine) Transition(ctx context.Context, businessID, conversationID, fromStageID, toStageID, llmCallID string) error {
	ok, err := m.Allowed(ctx, fromStageID, toStageID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Newf(apierr.Conflict, "stage %s does not permit transition to %s", fromStageID, toStageID)
	}

	if err := m.store.SetConversationStage(ctx, conversationID, toStageID, llmCallID); err != nil {
		return err
	}

	return m.store.RecordAuditLog(ctx, models.AuditLog{
		BusinessID: businessID,
		ActionType: "stage_transition",
		ActionData: map[string]any{
			"conversation_id": conversationID,
			"from_stage_id":   fromStageID,
			"to_stage_id":     toStageID,
			"llm_call_id":     llmCallID,
		},
	})
}

// Current fetches the stage a conversation is presently in.
func (m *Machine) Current(ctx context.Context, stageID string) (models.Stage, error) {
	if stageID == "" {
		return models.Stage{}, fmt.Errorf("stage: no current stage set")
	}
	return m.store.GetStage(ctx, stageID)
}
