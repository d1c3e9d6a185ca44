package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"algomap/api/internal/store"
)

// AggregateSubtopic combines a theme's shared subtopic content, emitted
// verbatim, with the requester's personal overlay into one read-only view.
// Nothing here writes: the shared record and the personal record stay
// separate, and the view is recomputed on every read.
func (s *Service) AggregateSubtopic(ctx context.Context, session Session, themeID, subtopicName string) (map[string]any, error) {
	theme, err := s.store.GetTheme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	shared, ok := theme.FindSubtopic(subtopicName)
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Subtopic not found", nil)
	}

	payload := subtopicPayload(shared)
	payload["themeId"] = theme.ID
	payload["themeName"] = theme.Name

	node, err := s.store.GetNodeForTheme(ctx, session.UserID, themeID)
	if errors.Is(err, sql.ErrNoRows) {
		// No personal record yet: the aggregated view is the shared view.
		payload["userHasThemeInRoadmap"] = false
		payload["personalNotes"] = ""
		payload["status"] = store.StatusNotStarted
		payload["progress"] = 0
		return payload, nil
	}
	if err != nil {
		return nil, err
	}

	payload["userHasThemeInRoadmap"] = true
	payload["status"] = node.Status
	payload["progress"] = node.Progress

	overlay, found := findOverlayByName(node, subtopicName)
	if !found {
		payload["personalNotes"] = ""
		return payload, nil
	}

	// Shared fields stay verbatim; personal extras come back under their own
	// keys so the client can tell the two apart.
	payload["personalNotes"] = overlay.Notes
	if len(overlay.CodeSnippets) > 0 {
		payload["personalCodeSnippets"] = overlay.CodeSnippets
	}
	if len(overlay.Problems) > 0 {
		payload["personalProblems"] = overlay.Problems
	}
	if len(overlay.Resources) > 0 {
		payload["personalResources"] = overlay.Resources
	}
	return payload, nil
}

// Overlays reference shared subtopics by name, so a rename on the shared
// side orphans the overlay rather than following it.
func findOverlayByName(node store.PersonalNode, name string) (store.Subtopic, bool) {
	for _, sub := range node.Subtopics {
		if sub.Name == name {
			return sub, true
		}
	}
	return store.Subtopic{}, false
}

