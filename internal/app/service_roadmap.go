package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"algomap/api/internal/rbac"
	"algomap/api/internal/store"
	"algomap/api/internal/util"
)

// NodeInput is the write shape for personal roadmap nodes. Pointer fields
// distinguish "not sent" from a real value, so a partial update only touches
// what the client sent.
type NodeInput struct {
	ThemeID        string            `json:"themeId"`
	Status         *string           `json:"status"`
	Progress       *int              `json:"progress"`
	Notes          *string           `json:"notes"`
	DueDate        *time.Time        `json:"dueDate"`
	SortOrder      *int              `json:"order"`
	SolvedProblems *[]string         `json:"solvedProblems"`
	Subtopics      *[]store.Subtopic `json:"subtopics"`
}

// OverlayInput is the write shape for a personal subtopic overlay.
type OverlayInput struct {
	Name         string              `json:"name"`
	Notes        string              `json:"personalNotes"`
	CodeSnippets []store.CodeSnippet `json:"codeSnippets"`
	Problems     []store.LinkedProblem `json:"problems"`
	Resources    []store.ResourceLink  `json:"resources"`
}

// Roadmap returns the user's personal nodes with their themes attached.
// Nodes whose theme was deleted come back with theme: null.
func (s *Service) Roadmap(ctx context.Context, session Session) ([]map[string]any, error) {
	nodes, err := s.store.ListNodesForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		items = append(items, nodePayload(node))
	}
	return items, nil
}

// UpsertNode creates or patches the requester's node for a theme. There is
// at most one node per (user, theme); a create that races an existing node
// collapses into an update.
func (s *Service) UpsertNode(ctx context.Context, session Session, input NodeInput) (map[string]any, error) {
	if strings.TrimSpace(input.ThemeID) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "themeId is required", nil)
	}
	theme, err := s.store.GetTheme(ctx, input.ThemeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Theme not found", nil)
		}
		return nil, err
	}

	node, err := s.store.GetNodeForTheme(ctx, session.UserID, input.ThemeID)
	if errors.Is(err, sql.ErrNoRows) {
		node = store.PersonalNode{
			ID:      util.NewID("node"),
			UserID:  session.UserID,
			ThemeID: input.ThemeID,
			Status:  store.StatusNotStarted,
		}
	} else if err != nil {
		return nil, err
	}

	if err := applyNodePatch(&node, input); err != nil {
		return nil, err
	}

	saved, err := s.store.UpsertNode(ctx, node)
	if err != nil {
		return nil, err
	}
	saved.Theme = &theme
	return nodePayload(saved), nil
}

// applyNodePatch folds a partial update into the node, enforcing the status
// machine. startedAt and completedAt are set on the first forward transition
// and never cleared, even when status later regresses.
func applyNodePatch(node *store.PersonalNode, input NodeInput) error {
	now := time.Now()

	if input.Status != nil {
		status, ok := store.NormalizeStatus(*input.Status)
		if !ok {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("status %q is not valid", *input.Status), nil)
		}
		node.Status = status
		if status != store.StatusNotStarted && node.StartedAt == nil {
			node.StartedAt = &now
		}
		if (status == store.StatusCompleted || status == store.StatusMastered) && node.CompletedAt == nil {
			node.CompletedAt = &now
		}
	}
	if input.Progress != nil {
		if *input.Progress < 0 || *input.Progress > 100 {
			return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "progress must be between 0 and 100", nil)
		}
		node.Progress = *input.Progress
	}
	if input.Notes != nil {
		node.Notes = *input.Notes
	}
	if input.DueDate != nil {
		node.DueDate = input.DueDate
	}
	if input.SortOrder != nil {
		node.SortOrder = *input.SortOrder
	}
	if input.SolvedProblems != nil {
		node.SolvedProblems = dedupeStrings(*input.SolvedProblems)
		node.LastPracticed = &now
	}
	if input.Subtopics != nil {
		overlays, err := prepareOverlays(*input.Subtopics)
		if err != nil {
			return err
		}
		node.Subtopics = overlays
	}
	return nil
}

// prepareOverlays readies personal overlays sent inline with an upsert: names
// trimmed and required, ids assigned where missing, shared-only fields
// stripped. Positions follow the slice unless the batch carries explicit
// orders.
func prepareOverlays(subtopics []store.Subtopic) ([]store.Subtopic, error) {
	explicit := hasExplicitOrder(subtopics)
	overlays := make([]store.Subtopic, 0, len(subtopics))
	for i, sub := range subtopics {
		sub.Name = strings.TrimSpace(sub.Name)
		if sub.Name == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "every subtopic needs a name", nil)
		}
		if sub.ID == "" {
			sub.ID = util.NewID("ovl")
		}
		sub.Theory = ""
		if !explicit {
			sub.Order = i
		}
		if err := validateSubtopic(sub); err != nil {
			return nil, err
		}
		overlays = append(overlays, sub)
	}
	return overlays, nil
}

// ReorderNodes bulk-assigns new positions to the requester's nodes. A single
// foreign node id rejects the whole batch.
func (s *Service) ReorderNodes(ctx context.Context, session Session, assignments []store.OrderAssignment) ([]map[string]any, error) {
	if len(assignments) == 0 {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "order assignments are required", nil)
	}
	if err := s.store.ReorderNodes(ctx, session.UserID, assignments); err != nil {
		if errors.Is(err, store.ErrForeignNode) {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR",
				"every node in a reorder must belong to you", nil)
		}
		return nil, err
	}
	return s.Roadmap(ctx, session)
}

// DeleteNode removes the requester's own node. There is no admin override
// for personal records.
func (s *Service) DeleteNode(ctx context.Context, session Session, nodeID string) error {
	node, err := s.store.GetNodeByID(ctx, nodeID)
	if err != nil {
		return err
	}
	if !rbac.CanMutatePersonal(session.UserID, node.UserID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "You can only delete your own roadmap nodes", nil)
	}
	deleted, err := s.store.DeleteNode(ctx, nodeID, session.UserID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

// AddOverlay attaches a personal overlay to one of the node's subtopics.
func (s *Service) AddOverlay(ctx context.Context, session Session, nodeID string, input OverlayInput) (map[string]any, error) {
	node, err := s.store.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanMutatePersonal(session.UserID, node.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You can only annotate your own roadmap nodes", nil)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}

	overlay := store.Subtopic{
		ID:           util.NewID("ovl"),
		Name:         name,
		Notes:        input.Notes,
		CodeSnippets: input.CodeSnippets,
		Problems:     input.Problems,
		Resources:    input.Resources,
		Order:        len(node.Subtopics),
	}
	if err := validateSubtopic(overlay); err != nil {
		return nil, err
	}

	node.Subtopics = append(node.Subtopics, overlay)
	if err := s.store.UpdateNode(ctx, node); err != nil {
		return nil, err
	}
	return subtopicPayload(overlay), nil
}

// UpdateOverlay rewrites an existing personal overlay by id.
func (s *Service) UpdateOverlay(ctx context.Context, session Session, nodeID, overlayID string, input OverlayInput) (map[string]any, error) {
	node, err := s.store.GetNodeByID(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if !rbac.CanMutatePersonal(session.UserID, node.UserID) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "You can only annotate your own roadmap nodes", nil)
	}
	index, ok := node.FindOverlay(overlayID)
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Overlay not found", nil)
	}

	overlay := node.Subtopics[index]
	if name := strings.TrimSpace(input.Name); name != "" {
		overlay.Name = name
	}
	overlay.Notes = input.Notes
	overlay.CodeSnippets = input.CodeSnippets
	overlay.Problems = input.Problems
	overlay.Resources = input.Resources
	if err := validateSubtopic(overlay); err != nil {
		return nil, err
	}

	node.Subtopics[index] = overlay
	if err := s.store.UpdateNode(ctx, node); err != nil {
		return nil, err
	}
	return subtopicPayload(overlay), nil
}

// DeleteOverlay removes a personal overlay by id.
func (s *Service) DeleteOverlay(ctx context.Context, session Session, nodeID, overlayID string) error {
	node, err := s.store.GetNodeByID(ctx, nodeID)
	if err != nil {
		return err
	}
	if !rbac.CanMutatePersonal(session.UserID, node.UserID) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "You can only annotate your own roadmap nodes", nil)
	}
	index, ok := node.FindOverlay(overlayID)
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Overlay not found", nil)
	}

	node.Subtopics = append(node.Subtopics[:index], node.Subtopics[index+1:]...)
	return s.store.UpdateNode(ctx, node)
}

func nodePayload(node store.PersonalNode) map[string]any {
	overlays := make([]map[string]any, 0, len(node.Subtopics))
	for _, sub := range node.Subtopics {
		overlays = append(overlays, subtopicPayload(sub))
	}
	payload := map[string]any{
		"id":             node.ID,
		"userId":         node.UserID,
		"themeId":        node.ThemeID,
		"status":         node.Status,
		"progress":       node.Progress,
		"notes":          node.Notes,
		"dueDate":        node.DueDate,
		"subtopics":      overlays,
		"solvedProblems": nonNilStrings(node.SolvedProblems),
		"order":          node.SortOrder,
		"startedAt":      node.StartedAt,
		"completedAt":    node.CompletedAt,
		"lastPracticed":  node.LastPracticed,
		"createdAt":      node.CreatedAt,
		"updatedAt":      node.UpdatedAt,
	}
	if node.Theme != nil {
		payload["theme"] = themePayload(*node.Theme)
	} else {
		payload["theme"] = nil
	}
	return payload
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		result = append(result, value)
	}
	return result
}
