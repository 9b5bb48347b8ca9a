// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the result payload schema: the per-scene decision
// record the builder extracts from raw experiment output and the browse
// service serves to columns.
package datatypes

// DecisionResult is the stored payload for one scene of one experiment
// run: the situation presented, the choices offered, and the decision the
// ADM made.
type DecisionResult struct {
	// ScenarioID and SceneID locate the result within its run.
	ScenarioID string `json:"scenario_id"`
	SceneID    string `json:"scene_id"`

	// InputText is the unstructured situation description shown to the
	// decision maker.
	InputText string `json:"input_text"`

	// Choices are the actions offered, in presentation order.
	Choices []Choice `json:"choices"`

	// ChosenIndex is the index into Choices of the action taken, or -1
	// when the recorded choice matched no offered action.
	ChosenIndex int `json:"chosen_index"`

	// Justification is the decision maker's stated reasoning, when the
	// run recorded one.
	Justification string `json:"justification,omitempty"`

	// DecisionTimeS is the decision time for this scene in seconds.
	DecisionTimeS float64 `json:"decision_time_s"`
}

// Choice is one action offered to the decision maker.
type Choice struct {
	// ActionID is the run's identifier for the action.
	ActionID string `json:"action_id"`

	// Description is the human-readable action text.
	Description string `json:"description"`

	// KDMAAssociation maps KDMA names to the value this action
	// expresses, when the scenario annotated it.
	KDMAAssociation map[string]float64 `json:"kdma_association,omitempty"`
}

// Chosen returns the selected choice, or nil when ChosenIndex is out of
// range.
func (r *DecisionResult) Chosen() *Choice {
	if r.ChosenIndex < 0 || r.ChosenIndex >= len(r.Choices) {
		return nil
	}
	return &r.Choices[r.ChosenIndex]
}
