package app

import (
	"net/http"
)

func (s *HTTPServer) routeTeams(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListTeams(r.Context())
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"teams": items})
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateTeam(r.Context(), session, body.Name)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	teamID := parts[2]

	if len(parts) == 3 && r.Method == http.MethodGet {
		payload, err := s.service.GetTeam(r.Context(), session, teamID)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "members" && r.Method == http.MethodPost {
		var body struct {
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpsertMember(r.Context(), session, teamID, body.UserID, true)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 5 && parts[3] == "members" && r.Method == http.MethodPut {
		var body struct {
			Active bool `json:"active"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpsertMember(r.Context(), session, teamID, parts[4], body.Active)
		if err != nil {
			writeMapped(w, err)
			return
		}
		writeData(w, http.StatusOK, payload)
		return
	}

	if len(parts) == 4 && parts[3] == "template" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.Template(r.Context(), session, teamID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"themes": items})
		case http.MethodPut:
			var body struct {
				Themes []string `json:"themes"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateTemplate(r.Context(), session, teamID, body.Themes)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusOK, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 4 && parts[3] == "links" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListTeamLinks(r.Context(), session, teamID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"links": items})
		case http.MethodPost:
			var body TeamLinkInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AddTeamLink(r.Context(), session, teamID, body)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 5 && parts[3] == "links" && r.Method == http.MethodDelete {
		if err := s.service.DeleteTeamLink(r.Context(), session, teamID, parts[4]); err != nil {
			writeMapped(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}

	if len(parts) == 4 && parts[3] == "achievements" {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListTeamAchievements(r.Context(), session, teamID)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"achievements": items})
		case http.MethodPost:
			var body TeamAchievementInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.AddTeamAchievement(r.Context(), session, teamID, body)
			if err != nil {
				writeMapped(w, err)
				return
			}
			writeData(w, http.StatusCreated, payload)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(parts) == 5 && parts[3] == "achievements" && r.Method == http.MethodDelete {
		if err := s.service.DeleteTeamAchievement(r.Context(), session, teamID, parts[4]); err != nil {
			writeMapped(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}
