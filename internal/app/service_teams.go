package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"algomap/api/internal/rbac"
	"algomap/api/internal/store"
	"algomap/api/internal/util"
)

// TeamLinkInput is the write shape for a team resource link.
type TeamLinkInput struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// TeamAchievementInput is the write shape for a team achievement.
type TeamAchievementInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (s *Service) CreateTeam(ctx context.Context, session Session, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}

	team := store.Team{
		ID:        util.NewID("team"),
		Name:      name,
		CreatedBy: session.UserID,
		Template:  []string{},
	}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return nil, err
	}
	// The creator joins as an active member.
	if err := s.store.UpsertTeamMember(ctx, team.ID, session.UserID, true); err != nil {
		return nil, err
	}
	return s.GetTeam(ctx, session, team.ID)
}

func (s *Service) ListTeams(ctx context.Context) ([]map[string]any, error) {
	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		items = append(items, teamPayload(team, nil))
	}
	return items, nil
}

func (s *Service) GetTeam(ctx context.Context, session Session, teamID string) (map[string]any, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	members, err := s.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return teamPayload(team, members), nil
}

// UpsertMember adds a user to the team or flips their active flag.
func (s *Service) UpsertMember(ctx context.Context, session Session, teamID, userID string, active bool) (map[string]any, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "userId is required", nil)
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "User not found", nil)
		}
		return nil, err
	}
	if err := s.store.UpsertTeamMember(ctx, teamID, userID, active); err != nil {
		return nil, err
	}
	return s.GetTeam(ctx, session, teamID)
}

// UpdateTemplate replaces the team's roadmap template: the ordered list of
// theme ids members are expected to work through. Every id must resolve.
func (s *Service) UpdateTemplate(ctx context.Context, session Session, teamID string, themeIDs []string) (map[string]any, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	for _, themeID := range themeIDs {
		if _, err := s.store.GetTheme(ctx, themeID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR",
					"template references a theme that does not exist: "+themeID, nil)
			}
			return nil, err
		}
	}
	if err := s.store.UpdateTeamTemplate(ctx, teamID, themeIDs); err != nil {
		return nil, err
	}
	return s.GetTeam(ctx, session, teamID)
}

func (s *Service) Template(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(team.Template))
	for _, themeID := range team.Template {
		theme, err := s.store.GetTheme(ctx, themeID)
		if errors.Is(err, sql.ErrNoRows) {
			// Deleted themes silently drop out of the template view.
			continue
		}
		if err != nil {
			return nil, err
		}
		items = append(items, themePayload(theme))
	}
	return items, nil
}

func (s *Service) AddTeamLink(ctx context.Context, session Session, teamID string, input TeamLinkInput) (map[string]any, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.URL) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title and url are required", nil)
	}
	link := store.TeamLink{
		ID:        util.NewID("lnk"),
		TeamID:    teamID,
		Title:     strings.TrimSpace(input.Title),
		URL:       strings.TrimSpace(input.URL),
		CreatedBy: session.UserID,
	}
	if err := s.store.InsertTeamLink(ctx, link); err != nil {
		return nil, err
	}
	return teamLinkPayload(link), nil
}

func (s *Service) ListTeamLinks(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	links, err := s.store.ListTeamLinks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(links))
	for _, link := range links {
		items = append(items, teamLinkPayload(link))
	}
	return items, nil
}

func (s *Service) DeleteTeamLink(ctx context.Context, session Session, teamID, linkID string) error {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteTeamLink(ctx, teamID, linkID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) AddTeamAchievement(ctx context.Context, session Session, teamID string, input TeamAchievementInput) (map[string]any, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title is required", nil)
	}
	achievement := store.TeamAchievement{
		ID:          util.NewID("ach"),
		TeamID:      teamID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Icon:        strings.TrimSpace(input.Icon),
		CreatedBy:   session.UserID,
	}
	if err := s.store.InsertTeamAchievement(ctx, achievement); err != nil {
		return nil, err
	}
	return teamAchievementPayload(achievement), nil
}

func (s *Service) ListTeamAchievements(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return nil, err
	}
	achievements, err := s.store.ListTeamAchievements(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(achievements))
	for _, achievement := range achievements {
		items = append(items, teamAchievementPayload(achievement))
	}
	return items, nil
}

func (s *Service) DeleteTeamAchievement(ctx context.Context, session Session, teamID, achievementID string) error {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return err
	}
	if err := s.requireTeamAccess(ctx, session, teamID); err != nil {
		return err
	}
	deleted, err := s.store.DeleteTeamAchievement(ctx, teamID, achievementID)
	if err != nil {
		return err
	}
	if !deleted {
		return sql.ErrNoRows
	}
	return nil
}

// requireTeamAccess enforces the team-scoped policy: active members and
// admins only.
func (s *Service) requireTeamAccess(ctx context.Context, session Session, teamID string) error {
	active, err := s.store.IsActiveTeamMember(ctx, teamID, session.UserID)
	if err != nil {
		return err
	}
	if !rbac.CanMutateTeamScoped(rbac.Normalize(session.Role), active) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Team access requires active membership", nil)
	}
	return nil
}

func teamPayload(team store.Team, members []store.TeamMember) map[string]any {
	payload := map[string]any{
		"id":        team.ID,
		"name":      team.Name,
		"createdBy": team.CreatedBy,
		"template":  nonNilStrings(team.Template),
		"createdAt": team.CreatedAt,
		"updatedAt": team.UpdatedAt,
	}
	if members != nil {
		items := make([]map[string]any, 0, len(members))
		for _, member := range members {
			items = append(items, map[string]any{
				"userId":   member.UserID,
				"userName": member.UserName,
				"active":   member.Active,
			})
		}
		payload["members"] = items
	}
	return payload
}

func teamLinkPayload(link store.TeamLink) map[string]any {
	return map[string]any{
		"id":        link.ID,
		"teamId":    link.TeamID,
		"title":     link.Title,
		"url":       link.URL,
		"createdBy": link.CreatedBy,
		"createdAt": link.CreatedAt,
	}
}

func teamAchievementPayload(achievement store.TeamAchievement) map[string]any {
	return map[string]any{
		"id":          achievement.ID,
		"teamId":      achievement.TeamID,
		"title":       achievement.Title,
		"description": achievement.Description,
		"icon":        achievement.Icon,
		"createdBy":   achievement.CreatedBy,
		"createdAt":   achievement.CreatedAt,
	}
}
