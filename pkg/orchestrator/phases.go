package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/stagehand-run/stagehand/pkg/models"
	"github.com/stagehand-run/stagehand/pkg/template"
)

// stageSelectionResult is the strict JSON shape the engine prefers
// (spec.md section 9, Open Question 2 supplement).
type stageSelectionResult struct {
	Stage      string  `json:"stage"`
	Confidence float64 `json:"confidence"`
}

// selectStage runs phase 1: render the current stage's selection template,
// call the LLM, and parse its answer as strict JSON first, falling back to
// the legacy free-text "Name, confidence: 0.9" convention. The chosen
// stage name is matched case-insensitively against the business's
// configured stages; an unmatched answer keeps the conversation in its
// current stage rather than transitioning nowhere.
func (o *Orchestrator) selectStage(ctx context.Context, business models.Business, conv models.Conversation, rc template.RenderContext) (string, error) {
	fromStageID := conv.CurrentStageID
	if fromStageID == "" {
		bootstrap, err := o.machine.Bootstrap(ctx, business.ID)
		if err != nil {
			return "", err
		}
		fromStageID = bootstrap.ID
	}

	currentStage, err := o.machine.Current(ctx, fromStageID)
	if err != nil {
		return "", err
	}

	systemPrompt, userPrompt, err := o.renderTemplate(ctx, currentStage.StageSelectionTemplateID, rc)
	if err != nil {
		return "", err
	}

	raw, callErr := o.call(ctx, business.ID, models.LLMCallSelection, systemPrompt, userPrompt)
	if callErr != nil {
		return fromStageID, callErr
	}

	stages, err := o.store.ListStages(ctx, business.ID)
	if err != nil {
		return fromStageID, err
	}

	name, confidence := parseStageSelection(raw)
	targetID := matchStageName(stages, name)

	if _, err := o.store.RecordExtractedData(ctx, models.ExtractedData{
		ConversationID: conv.ID,
		StageID:        fromStageID,
		DataType:       "stage_selection",
		Data: map[string]any{
			"stage":      name,
			"confidence": confidence,
			"matched":    targetID != "",
		},
	}); err != nil {
		return fromStageID, err
	}

	if targetID == "" || targetID == fromStageID {
		return fromStageID, nil
	}

	callID := ""
	if err := o.machine.Transition(ctx, business.ID, conv.ID, fromStageID, targetID, callID); err != nil {
		return fromStageID, err
	}
	return targetID, nil
}

func matchStageName(stages []models.Stage, name string) string {
	if name == "" {
		return ""
	}
	for _, s := range stages {
		if strings.EqualFold(s.StageName, name) {
			return s.ID
		}
	}
	return ""
}

// parseStageSelection tries strict JSON first, then the free-text
// "Name, confidence: 0.9" convention.
func parseStageSelection(raw string) (name string, confidence float64) {
	trimmed := strings.TrimSpace(raw)

	var parsed stageSelectionResult
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Stage != "" {
		return parsed.Stage, parsed.Confidence
	}

	parts := strings.SplitN(trimmed, ",", 2)
	name = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		rest := strings.ToLower(strings.TrimSpace(parts[1]))
		if strings.HasPrefix(rest, "confidence:") {
			f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(rest, "confidence:")), 64)
			if err == nil {
				confidence = f
			}
		}
	}
	return name, confidence
}

// extractData runs phase 2: render the stage's extraction template, call
// the LLM, parse its answer as a JSON object, and record it. A malformed
// or empty response is recorded as an empty extraction rather than
// failing the pipeline.
func (o *Orchestrator) extractData(ctx context.Context, business models.Business, conv models.Conversation, stageID string, rc template.RenderContext) error {
	st, err := o.machine.Current(ctx, stageID)
	if err != nil {
		return err
	}

	systemPrompt, userPrompt, err := o.renderTemplate(ctx, st.DataExtractionTemplateID, rc)
	if err != nil {
		return err
	}

	raw, callErr := o.call(ctx, business.ID, models.LLMCallExtraction, systemPrompt, userPrompt)
	if callErr != nil {
		return callErr
	}

	data := map[string]any{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
		data = map[string]any{}
	}

	_, err = o.store.RecordExtractedData(ctx, models.ExtractedData{
		ConversationID: conv.ID,
		StageID:        stageID,
		DataType:       "data_extraction",
		Data:           data,
	})
	return err
}

// generateResponse runs phase 3: render the stage's response template and
// call the LLM. On failure, or when the breaker is already open from
// repeated failures for this business, it returns the business's
// configured fallback reply instead and reports degraded=true. This phase
// never returns an error: a reply is always produced (spec.md section 4.7).
func (o *Orchestrator) generateResponse(ctx context.Context, business models.Business, conv models.Conversation, stageID string, rc template.RenderContext) (reply string, degraded bool) {
	if o.breaker.open(business.ID) {
		return business.FallbackMessage, true
	}

	st, err := o.machine.Current(ctx, stageID)
	if err != nil {
		o.breaker.recordFailure(business.ID)
		return business.FallbackMessage, true
	}

	systemPrompt, userPrompt, err := o.renderTemplate(ctx, st.ResponseGenerationTmplID, rc)
	if err != nil {
		o.breaker.recordFailure(business.ID)
		return business.FallbackMessage, true
	}

	text, callErr := o.call(ctx, business.ID, models.LLMCallGeneration, systemPrompt, userPrompt)
	if callErr != nil || strings.TrimSpace(text) == "" {
		o.breaker.recordFailure(business.ID)
		return business.FallbackMessage, true
	}

	o.breaker.recordSuccess(business.ID)
	return text, false
}
