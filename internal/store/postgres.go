package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrForeignNode is returned when a bulk reorder references a node that does
// not belong to the requesting user. The whole batch is rejected.
var ErrForeignNode = errors.New("node does not belong to user")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, deactivated_at
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.DeactivatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, role, deactivated_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role, &user.DeactivatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ---------------------------------------------------------------------------
// Refresh sessions and token revocation (Postgres fallback when Redis is not
// configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Themes

const themeColumns = `
	t.id, t.name, t.description, t.category, t.difficulty, t.tags::text,
	t.created_by, COALESCE(u.display_name, ''), t.is_public, t.subtopics::text,
	t.sort_order, t.created_at, t.updated_at
`

func scanTheme(row interface{ Scan(...any) error }) (Theme, error) {
	var theme Theme
	var tagsRaw, subtopicsRaw string
	err := row.Scan(
		&theme.ID, &theme.Name, &theme.Description, &theme.Category, &theme.Difficulty,
		&tagsRaw, &theme.CreatedBy, &theme.CreatorName, &theme.IsPublic, &subtopicsRaw,
		&theme.SortOrder, &theme.CreatedAt, &theme.UpdatedAt,
	)
	if err != nil {
		return Theme{}, err
	}
	if err := json.Unmarshal([]byte(tagsRaw), &theme.Tags); err != nil {
		return Theme{}, fmt.Errorf("decode theme tags: %w", err)
	}
	if err := json.Unmarshal([]byte(subtopicsRaw), &theme.Subtopics); err != nil {
		return Theme{}, fmt.Errorf("decode theme subtopics: %w", err)
	}
	return theme, nil
}

func (s *PostgresStore) ListPublicThemes(ctx context.Context) ([]Theme, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+themeColumns+`
		FROM themes t
		LEFT JOIN users u ON u.id = t.created_by
		WHERE t.is_public = TRUE
		ORDER BY t.sort_order, t.created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list public themes: %w", err)
	}
	defer rows.Close()

	var themes []Theme
	for rows.Next() {
		theme, err := scanTheme(rows)
		if err != nil {
			return nil, err
		}
		themes = append(themes, theme)
	}
	return themes, rows.Err()
}

func (s *PostgresStore) GetTheme(ctx context.Context, themeID string) (Theme, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+themeColumns+`
		FROM themes t
		LEFT JOIN users u ON u.id = t.created_by
		WHERE t.id = $1
	`, themeID)
	return scanTheme(row)
}

func (s *PostgresStore) InsertTheme(ctx context.Context, theme Theme) error {
	tags, err := json.Marshal(theme.Tags)
	if err != nil {
		return fmt.Errorf("encode theme tags: %w", err)
	}
	subtopics, err := json.Marshal(theme.Subtopics)
	if err != nil {
		return fmt.Errorf("encode theme subtopics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO themes (id, name, description, category, difficulty, tags, created_by, is_public, subtopics, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9::jsonb, $10)
	`, theme.ID, theme.Name, theme.Description, theme.Category, theme.Difficulty,
		string(tags), theme.CreatedBy, theme.IsPublic, string(subtopics), theme.SortOrder)
	if err != nil {
		return fmt.Errorf("insert theme: %w", err)
	}
	return nil
}

// UpdateTheme rewrites the whole theme document. Last write wins; there is
// no per-field merge or concurrency token.
func (s *PostgresStore) UpdateTheme(ctx context.Context, theme Theme) error {
	tags, err := json.Marshal(theme.Tags)
	if err != nil {
		return fmt.Errorf("encode theme tags: %w", err)
	}
	subtopics, err := json.Marshal(theme.Subtopics)
	if err != nil {
		return fmt.Errorf("encode theme subtopics: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE themes
		SET name=$2, description=$3, category=$4, difficulty=$5, tags=$6::jsonb,
			is_public=$7, subtopics=$8::jsonb, sort_order=$9, updated_at=NOW()
		WHERE id=$1
	`, theme.ID, theme.Name, theme.Description, theme.Category, theme.Difficulty,
		string(tags), theme.IsPublic, string(subtopics), theme.SortOrder)
	if err != nil {
		return fmt.Errorf("update theme: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update theme rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateThemeSubtopics(ctx context.Context, themeID string, subtopics []Subtopic) error {
	encoded, err := json.Marshal(subtopics)
	if err != nil {
		return fmt.Errorf("encode subtopics: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE themes SET subtopics=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, themeID, string(encoded))
	if err != nil {
		return fmt.Errorf("update theme subtopics: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update theme subtopics rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTheme removes the theme row only. Personal nodes referencing the
// theme are left in place and surface with a nil theme on roadmap reads.
func (s *PostgresStore) DeleteTheme(ctx context.Context, themeID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM themes WHERE id=$1`, themeID)
	if err != nil {
		return fmt.Errorf("delete theme: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete theme rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemoveOverlaysByName strips every user's personal overlay for the named
// subtopic of a theme. Runs when a subtopic is deleted globally: overlays
// reference subtopics by name, so they go with it.
func (s *PostgresStore) RemoveOverlaysByName(ctx context.Context, themeID, subtopicName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin overlay cascade: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, subtopics::text FROM personal_nodes WHERE theme_id = $1 FOR UPDATE
	`, themeID)
	if err != nil {
		return fmt.Errorf("load nodes for cascade: %w", err)
	}

	type pending struct {
		id       string
		overlays []Subtopic
	}
	var updates []pending
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return fmt.Errorf("scan node for cascade: %w", err)
		}
		var overlays []Subtopic
		if err := json.Unmarshal([]byte(raw), &overlays); err != nil {
			rows.Close()
			return fmt.Errorf("decode overlays for cascade: %w", err)
		}
		kept := overlays[:0]
		removed := false
		for _, overlay := range overlays {
			if overlay.Name == subtopicName {
				removed = true
				continue
			}
			kept = append(kept, overlay)
		}
		if removed {
			updates = append(updates, pending{id: id, overlays: kept})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate nodes for cascade: %w", err)
	}

	for _, update := range updates {
		encoded, err := json.Marshal(update.overlays)
		if err != nil {
			return fmt.Errorf("encode overlays for cascade: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE personal_nodes SET subtopics=$2::jsonb, updated_at=NOW() WHERE id=$1
		`, update.id, string(encoded)); err != nil {
			return fmt.Errorf("strip overlay from node %s: %w", update.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit overlay cascade: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Personal nodes

const nodeColumns = `
	n.id, n.user_id, n.theme_id, n.status, n.progress, n.notes, n.due_date,
	n.subtopics::text, n.solved_problems::text, n.sort_order,
	n.started_at, n.completed_at, n.last_practiced, n.created_at, n.updated_at
`

func scanNode(row interface{ Scan(...any) error }) (PersonalNode, error) {
	var node PersonalNode
	var subtopicsRaw, solvedRaw string
	err := row.Scan(
		&node.ID, &node.UserID, &node.ThemeID, &node.Status, &node.Progress, &node.Notes,
		&node.DueDate, &subtopicsRaw, &solvedRaw, &node.SortOrder,
		&node.StartedAt, &node.CompletedAt, &node.LastPracticed, &node.CreatedAt, &node.UpdatedAt,
	)
	if err != nil {
		return PersonalNode{}, err
	}
	if err := json.Unmarshal([]byte(subtopicsRaw), &node.Subtopics); err != nil {
		return PersonalNode{}, fmt.Errorf("decode node subtopics: %w", err)
	}
	if err := json.Unmarshal([]byte(solvedRaw), &node.SolvedProblems); err != nil {
		return PersonalNode{}, fmt.Errorf("decode solved problems: %w", err)
	}
	return node, nil
}

func (s *PostgresStore) GetNodeByID(ctx context.Context, nodeID string) (PersonalNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM personal_nodes n WHERE n.id = $1
	`, nodeID)
	return scanNode(row)
}

func (s *PostgresStore) GetNodeForTheme(ctx context.Context, userID, themeID string) (PersonalNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+` FROM personal_nodes n WHERE n.user_id = $1 AND n.theme_id = $2
	`, userID, themeID)
	return scanNode(row)
}

// ListNodesForUser returns the user's roadmap with each node's theme
// populated. A node whose theme was deleted comes back with Theme == nil.
func (s *PostgresStore) ListNodesForUser(ctx context.Context, userID string) ([]PersonalNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM personal_nodes n
		WHERE n.user_id = $1
		ORDER BY n.sort_order, n.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []PersonalNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range nodes {
		theme, err := s.GetTheme(ctx, nodes[i].ThemeID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes[i].Theme = &theme
	}
	return nodes, nil
}

// UpsertNode writes the node as a whole document. The unique index on
// (user_id, theme_id) turns a create race into an update, so a duplicate
// creation never surfaces to the caller.
func (s *PostgresStore) UpsertNode(ctx context.Context, node PersonalNode) (PersonalNode, error) {
	subtopics, err := json.Marshal(node.Subtopics)
	if err != nil {
		return PersonalNode{}, fmt.Errorf("encode node subtopics: %w", err)
	}
	solved, err := json.Marshal(node.SolvedProblems)
	if err != nil {
		return PersonalNode{}, fmt.Errorf("encode solved problems: %w", err)
	}
	if node.SolvedProblems == nil {
		solved = []byte("[]")
	}
	if node.Subtopics == nil {
		subtopics = []byte("[]")
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO personal_nodes
			(id, user_id, theme_id, status, progress, notes, due_date, subtopics, solved_problems, sort_order, started_at, completed_at, last_practiced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13)
		ON CONFLICT (user_id, theme_id) DO UPDATE SET
			status=EXCLUDED.status, progress=EXCLUDED.progress, notes=EXCLUDED.notes,
			due_date=EXCLUDED.due_date, subtopics=EXCLUDED.subtopics,
			solved_problems=EXCLUDED.solved_problems, sort_order=EXCLUDED.sort_order,
			started_at=EXCLUDED.started_at, completed_at=EXCLUDED.completed_at,
			last_practiced=EXCLUDED.last_practiced, updated_at=NOW()
		RETURNING id, created_at, updated_at
	`, node.ID, node.UserID, node.ThemeID, node.Status, node.Progress, node.Notes, node.DueDate,
		string(subtopics), string(solved), node.SortOrder, node.StartedAt, node.CompletedAt, node.LastPracticed)

	if err := row.Scan(&node.ID, &node.CreatedAt, &node.UpdatedAt); err != nil {
		return PersonalNode{}, fmt.Errorf("upsert node: %w", err)
	}
	return node, nil
}

// UpdateNode rewrites an existing node's mutable fields by id.
func (s *PostgresStore) UpdateNode(ctx context.Context, node PersonalNode) error {
	subtopics, err := json.Marshal(node.Subtopics)
	if err != nil {
		return fmt.Errorf("encode node subtopics: %w", err)
	}
	solved, err := json.Marshal(node.SolvedProblems)
	if err != nil {
		return fmt.Errorf("encode solved problems: %w", err)
	}
	if node.Subtopics == nil {
		subtopics = []byte("[]")
	}
	if node.SolvedProblems == nil {
		solved = []byte("[]")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE personal_nodes SET
			status=$2, progress=$3, notes=$4, due_date=$5, subtopics=$6::jsonb,
			solved_problems=$7::jsonb, sort_order=$8, started_at=$9, completed_at=$10,
			last_practiced=$11, updated_at=NOW()
		WHERE id=$1
	`, node.ID, node.Status, node.Progress, node.Notes, node.DueDate, string(subtopics),
		string(solved), node.SortOrder, node.StartedAt, node.CompletedAt, node.LastPracticed)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update node rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteNode(ctx context.Context, nodeID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM personal_nodes WHERE id=$1 AND user_id=$2
	`, nodeID, userID)
	if err != nil {
		return false, fmt.Errorf("delete node: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete node rows: %w", err)
	}
	return affected > 0, nil
}

// ReorderNodes bulk-assigns order values. Every id must belong to the user;
// a single foreign id rejects the whole batch and nothing changes.
func (s *PostgresStore) ReorderNodes(ctx context.Context, userID string, assignments []OrderAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	owned := make(map[string]bool)
	rows, err := tx.QueryContext(ctx, `SELECT id FROM personal_nodes WHERE user_id=$1 FOR UPDATE`, userID)
	if err != nil {
		return fmt.Errorf("load owned nodes: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan owned node: %w", err)
		}
		owned[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate owned nodes: %w", err)
	}

	for _, assignment := range assignments {
		if !owned[assignment.ID] {
			return fmt.Errorf("%w: %s", ErrForeignNode, assignment.ID)
		}
	}

	for _, assignment := range assignments {
		if _, err := tx.ExecContext(ctx, `
			UPDATE personal_nodes SET sort_order=$2, updated_at=NOW() WHERE id=$1
		`, assignment.ID, assignment.Order); err != nil {
			return fmt.Errorf("reorder node %s: %w", assignment.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Teams

func (s *PostgresStore) InsertTeam(ctx context.Context, team Team) error {
	template, err := json.Marshal(team.Template)
	if err != nil {
		return fmt.Errorf("encode team template: %w", err)
	}
	if team.Template == nil {
		template = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, created_by, template) VALUES ($1, $2, $3, $4::jsonb)
	`, team.ID, team.Name, team.CreatedBy, string(template))
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_by, template::text, created_at, updated_at FROM teams ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func scanTeam(row interface{ Scan(...any) error }) (Team, error) {
	var team Team
	var templateRaw string
	if err := row.Scan(&team.ID, &team.Name, &team.CreatedBy, &templateRaw, &team.CreatedAt, &team.UpdatedAt); err != nil {
		return Team{}, err
	}
	if err := json.Unmarshal([]byte(templateRaw), &team.Template); err != nil {
		return Team{}, fmt.Errorf("decode team template: %w", err)
	}
	return team, nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_by, template::text, created_at, updated_at FROM teams WHERE id=$1
	`, teamID)
	return scanTeam(row)
}

func (s *PostgresStore) UpdateTeamTemplate(ctx context.Context, teamID string, themeIDs []string) error {
	encoded, err := json.Marshal(themeIDs)
	if err != nil {
		return fmt.Errorf("encode team template: %w", err)
	}
	if themeIDs == nil {
		encoded = []byte("[]")
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE teams SET template=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, teamID, string(encoded))
	if err != nil {
		return fmt.Errorf("update team template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update team template rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpsertTeamMember(ctx context.Context, teamID, userID string, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_members (team_id, user_id, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id, user_id) DO UPDATE SET active=EXCLUDED.active
	`, teamID, userID, active)
	if err != nil {
		return fmt.Errorf("upsert team member: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.team_id, tm.user_id, COALESCE(u.display_name, ''), tm.active
		FROM team_members tm
		LEFT JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = $1
		ORDER BY u.display_name
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()

	var members []TeamMember
	for rows.Next() {
		var member TeamMember
		if err := rows.Scan(&member.TeamID, &member.UserID, &member.UserName, &member.Active); err != nil {
			return nil, fmt.Errorf("scan team member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (s *PostgresStore) IsActiveTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM team_members WHERE team_id=$1 AND user_id=$2 AND active=TRUE)
	`, teamID, userID).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check team membership: %w", err)
	}
	return active, nil
}

func (s *PostgresStore) InsertTeamLink(ctx context.Context, link TeamLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_links (id, team_id, title, url, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, link.ID, link.TeamID, link.Title, link.URL, link.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert team link: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTeamLinks(ctx context.Context, teamID string) ([]TeamLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, title, url, created_by, created_at
		FROM team_links WHERE team_id=$1 ORDER BY created_at
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team links: %w", err)
	}
	defer rows.Close()

	var links []TeamLink
	for rows.Next() {
		var link TeamLink
		if err := rows.Scan(&link.ID, &link.TeamID, &link.Title, &link.URL, &link.CreatedBy, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) DeleteTeamLink(ctx context.Context, teamID, linkID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_links WHERE id=$1 AND team_id=$2`, linkID, teamID)
	if err != nil {
		return false, fmt.Errorf("delete team link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete team link rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) InsertTeamAchievement(ctx context.Context, achievement TeamAchievement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_achievements (id, team_id, title, description, icon, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, achievement.ID, achievement.TeamID, achievement.Title, achievement.Description, achievement.Icon, achievement.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert team achievement: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTeamAchievements(ctx context.Context, teamID string) ([]TeamAchievement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, title, description, icon, created_by, created_at
		FROM team_achievements WHERE team_id=$1 ORDER BY created_at
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team achievements: %w", err)
	}
	defer rows.Close()

	var achievements []TeamAchievement
	for rows.Next() {
		var achievement TeamAchievement
		if err := rows.Scan(&achievement.ID, &achievement.TeamID, &achievement.Title, &achievement.Description, &achievement.Icon, &achievement.CreatedBy, &achievement.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team achievement: %w", err)
		}
		achievements = append(achievements, achievement)
	}
	return achievements, rows.Err()
}

func (s *PostgresStore) DeleteTeamAchievement(ctx context.Context, teamID, achievementID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_achievements WHERE id=$1 AND team_id=$2`, achievementID, teamID)
	if err != nil {
		return false, fmt.Errorf("delete team achievement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete team achievement rows: %w", err)
	}
	return affected > 0, nil
}
