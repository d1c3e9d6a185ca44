package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"algomap/api/internal/authpw"
	"algomap/api/internal/config"
	"algomap/api/internal/history"
	"algomap/api/internal/store"
)

type fakeStore struct {
	users  map[string]store.User
	themes map[string]store.Theme
	nodes  map[string]store.PersonalNode

	refreshSessions map[string]store.User
	revokedTokens   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:           make(map[string]store.User),
		themes:          make(map[string]store.Theme),
		nodes:           make(map[string]store.PersonalNode),
		refreshSessions: make(map[string]store.User),
		revokedTokens:   make(map[string]bool),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.users[user.ID] = user
	return nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if user, ok := f.users[userID]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) ListPublicThemes(ctx context.Context) ([]store.Theme, error) {
	var themes []store.Theme
	for _, theme := range f.themes {
		if theme.IsPublic {
			themes = append(themes, theme)
		}
	}
	return themes, nil
}
func (f *fakeStore) GetTheme(ctx context.Context, themeID string) (store.Theme, error) {
	if theme, ok := f.themes[themeID]; ok {
		return theme, nil
	}
	return store.Theme{}, sql.ErrNoRows
}
func (f *fakeStore) InsertTheme(ctx context.Context, theme store.Theme) error {
	f.themes[theme.ID] = theme
	return nil
}
func (f *fakeStore) UpdateTheme(ctx context.Context, theme store.Theme) error {
	if _, ok := f.themes[theme.ID]; !ok {
		return sql.ErrNoRows
	}
	f.themes[theme.ID] = theme
	return nil
}
func (f *fakeStore) UpdateThemeSubtopics(ctx context.Context, themeID string, subtopics []store.Subtopic) error {
	theme, ok := f.themes[themeID]
	if !ok {
		return sql.ErrNoRows
	}
	theme.Subtopics = subtopics
	f.themes[themeID] = theme
	return nil
}
func (f *fakeStore) DeleteTheme(ctx context.Context, themeID string) error {
	if _, ok := f.themes[themeID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.themes, themeID)
	return nil
}
func (f *fakeStore) RemoveOverlaysByName(ctx context.Context, themeID, subtopicName string) error {
	for id, node := range f.nodes {
		if node.ThemeID != themeID {
			continue
		}
		kept := node.Subtopics[:0]
		for _, sub := range node.Subtopics {
			if sub.Name != subtopicName {
				kept = append(kept, sub)
			}
		}
		node.Subtopics = kept
		f.nodes[id] = node
	}
	return nil
}

func (f *fakeStore) GetNodeByID(ctx context.Context, nodeID string) (store.PersonalNode, error) {
	if node, ok := f.nodes[nodeID]; ok {
		return node, nil
	}
	return store.PersonalNode{}, sql.ErrNoRows
}
func (f *fakeStore) GetNodeForTheme(ctx context.Context, userID, themeID string) (store.PersonalNode, error) {
	for _, node := range f.nodes {
		if node.UserID == userID && node.ThemeID == themeID {
			return node, nil
		}
	}
	return store.PersonalNode{}, sql.ErrNoRows
}
func (f *fakeStore) ListNodesForUser(ctx context.Context, userID string) ([]store.PersonalNode, error) {
	var nodes []store.PersonalNode
	for _, node := range f.nodes {
		if node.UserID != userID {
			continue
		}
		if theme, ok := f.themes[node.ThemeID]; ok {
			copied := theme
			node.Theme = &copied
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
func (f *fakeStore) UpsertNode(ctx context.Context, node store.PersonalNode) (store.PersonalNode, error) {
	for id, existing := range f.nodes {
		if existing.UserID == node.UserID && existing.ThemeID == node.ThemeID {
			node.ID = id
			f.nodes[id] = node
			return node, nil
		}
	}
	f.nodes[node.ID] = node
	return node, nil
}
func (f *fakeStore) UpdateNode(ctx context.Context, node store.PersonalNode) error {
	if _, ok := f.nodes[node.ID]; !ok {
		return sql.ErrNoRows
	}
	f.nodes[node.ID] = node
	return nil
}
func (f *fakeStore) DeleteNode(ctx context.Context, nodeID, userID string) (bool, error) {
	node, ok := f.nodes[nodeID]
	if !ok || node.UserID != userID {
		return false, nil
	}
	delete(f.nodes, nodeID)
	return true, nil
}
func (f *fakeStore) ReorderNodes(ctx context.Context, userID string, assignments []store.OrderAssignment) error {
	for _, assignment := range assignments {
		node, ok := f.nodes[assignment.ID]
		if !ok || node.UserID != userID {
			return store.ErrForeignNode
		}
	}
	for _, assignment := range assignments {
		node := f.nodes[assignment.ID]
		node.SortOrder = assignment.Order
		f.nodes[assignment.ID] = node
	}
	return nil
}

func (f *fakeStore) InsertTeam(context.Context, store.Team) error          { return nil }
func (f *fakeStore) ListTeams(context.Context) ([]store.Team, error)      { return nil, nil }
func (f *fakeStore) GetTeam(context.Context, string) (store.Team, error)  { return store.Team{}, sql.ErrNoRows }
func (f *fakeStore) UpdateTeamTemplate(context.Context, string, []string) error { return nil }
func (f *fakeStore) UpsertTeamMember(context.Context, string, string, bool) error {
	return nil
}
func (f *fakeStore) ListTeamMembers(context.Context, string) ([]store.TeamMember, error) {
	return nil, nil
}
func (f *fakeStore) IsActiveTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	return false, nil
}
func (f *fakeStore) InsertTeamLink(context.Context, store.TeamLink) error { return nil }
func (f *fakeStore) ListTeamLinks(context.Context, string) ([]store.TeamLink, error) {
	return nil, nil
}
func (f *fakeStore) DeleteTeamLink(context.Context, string, string) (bool, error) {
	return false, nil
}
func (f *fakeStore) InsertTeamAchievement(context.Context, store.TeamAchievement) error { return nil }
func (f *fakeStore) ListTeamAchievements(context.Context, string) ([]store.TeamAchievement, error) {
	return nil, nil
}
func (f *fakeStore) DeleteTeamAchievement(context.Context, string, string) (bool, error) {
	return false, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	f.refreshSessions[tokenHash] = user
	return nil
}
func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	if user, ok := f.refreshSessions[tokenHash]; ok {
		return user, nil
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	delete(f.refreshSessions, tokenHash)
	return nil
}
func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	f.revokedTokens[jti] = true
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return f.revokedTokens[jti], nil
}

type fakeHistory struct {
	ensures  []string
	commits  []string
	removals []string
}

func (f *fakeHistory) EnsureThemeRepo(themeID, author string) error {
	f.ensures = append(f.ensures, themeID)
	return nil
}
func (f *fakeHistory) RecordSubtopic(themeID string, subtopic store.Subtopic, author, message string) (history.CommitInfo, error) {
	f.commits = append(f.commits, themeID+"/"+subtopic.Name+": "+message)
	return history.CommitInfo{Hash: "abc1234", Message: message, Author: author, CreatedAt: time.Now()}, nil
}
func (f *fakeHistory) RemoveSubtopic(themeID, subtopicName, author string) error {
	f.removals = append(f.removals, themeID+"/"+subtopicName)
	return nil
}
func (f *fakeHistory) History(themeID, subtopicName string, limit int) ([]history.CommitInfo, error) {
	return nil, nil
}

func newTestService(fs *fakeStore) (*Service, *fakeHistory) {
	fh := &fakeHistory{}
	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		},
		store:    fs,
		sessions: fs,
		authpw:   authpw.NewService(fs),
		history:  fh,
	}
	return svc, fh
}

func seedTheme(fs *fakeStore, createdBy string) store.Theme {
	theme := store.Theme{
		ID:        "thm-1",
		Name:      "Graph Algorithms",
		Category:  "graph",
		CreatedBy: createdBy,
		IsPublic:  true,
		Subtopics: []store.Subtopic{
			{ID: "sub-1", Name: "DFS", Theory: "Depth first traversal.", Order: 0},
			{ID: "sub-2", Name: "BFS", Theory: "Breadth first traversal.", Order: 1},
		},
	}
	fs.themes[theme.ID] = theme
	return theme
}

func asDomainError(t *testing.T, err error) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domainErr
}

func TestAggregateSubtopicWithoutNode(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)

	payload, err := svc.AggregateSubtopic(context.Background(), Session{UserID: "u1"}, "thm-1", "DFS")
	if err != nil {
		t.Fatalf("AggregateSubtopic() error = %v", err)
	}
	if payload["theory"] != "Depth first traversal." {
		t.Errorf("expected shared theory, got %v", payload["theory"])
	}
	if payload["personalNotes"] != "" {
		t.Errorf("expected empty personal notes, got %v", payload["personalNotes"])
	}
	if payload["status"] != store.StatusNotStarted {
		t.Errorf("expected status not-started, got %v", payload["status"])
	}
	if payload["userHasThemeInRoadmap"] != false {
		t.Errorf("expected userHasThemeInRoadmap=false, got %v", payload["userHasThemeInRoadmap"])
	}
}

func TestAggregateSubtopicKeepsSharedAndPersonalApart(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	theme := fs.themes["thm-1"]
	theme.Subtopics[0].CodeSnippets = []store.CodeSnippet{
		{Language: "cpp", Code: "// iterative dfs"},
	}
	fs.themes["thm-1"] = theme
	fs.nodes["node-1"] = store.PersonalNode{
		ID:      "node-1",
		UserID:  "u1",
		ThemeID: "thm-1",
		Status:  store.StatusInProgress,
		Subtopics: []store.Subtopic{
			{
				ID:    "ovl-1",
				Name:  "DFS",
				Notes: "Remember the recursion limit.",
				CodeSnippets: []store.CodeSnippet{
					{Language: "python", Code: "sys.setrecursionlimit(10**6)"},
				},
			},
		},
	}
	svc, _ := newTestService(fs)

	payload, err := svc.AggregateSubtopic(context.Background(), Session{UserID: "u1"}, "thm-1", "DFS")
	if err != nil {
		t.Fatalf("AggregateSubtopic() error = %v", err)
	}
	if payload["personalNotes"] != "Remember the recursion limit." {
		t.Errorf("expected personal notes in aggregate, got %v", payload["personalNotes"])
	}
	if payload["theory"] != "Depth first traversal." {
		t.Errorf("shared theory should come back verbatim, got %v", payload["theory"])
	}
	if payload["status"] != store.StatusInProgress {
		t.Errorf("expected node status, got %v", payload["status"])
	}
	if payload["userHasThemeInRoadmap"] != true {
		t.Errorf("expected userHasThemeInRoadmap=true, got %v", payload["userHasThemeInRoadmap"])
	}

	// Shared snippets stay shared; personal ones come back under their own key.
	shared, ok := payload["codeSnippets"].([]store.CodeSnippet)
	if !ok || len(shared) != 1 || shared[0].Language != "cpp" {
		t.Errorf("shared codeSnippets altered: %v", payload["codeSnippets"])
	}
	personal, ok := payload["personalCodeSnippets"].([]store.CodeSnippet)
	if !ok || len(personal) != 1 || personal[0].Language != "python" {
		t.Errorf("personalCodeSnippets = %v", payload["personalCodeSnippets"])
	}

	// Aggregation is read-only: the shared record never absorbs the overlay.
	theme = fs.themes["thm-1"]
	if theme.Subtopics[0].Notes != "" {
		t.Error("overlay leaked into shared content")
	}

	// A different user sees the clean shared view.
	other, err := svc.AggregateSubtopic(context.Background(), Session{UserID: "u2"}, "thm-1", "DFS")
	if err != nil {
		t.Fatalf("AggregateSubtopic(other) error = %v", err)
	}
	if other["personalNotes"] != "" {
		t.Errorf("another user's notes visible, got %v", other["personalNotes"])
	}
	if _, leaked := other["personalCodeSnippets"]; leaked {
		t.Error("another user's snippets visible")
	}
}

func TestAggregateUnknownSubtopic(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)

	_, err := svc.AggregateSubtopic(context.Background(), Session{UserID: "u1"}, "thm-1", "Dijkstra")
	domainErr := asDomainError(t, err)
	if domainErr.Status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", domainErr.Status)
	}
}

func TestUpdateSharedSubtopicAuthorization(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, fh := newTestService(fs)

	input := store.Subtopic{Theory: "Iterative DFS with an explicit stack."}

	_, err := svc.UpdateSharedSubtopic(context.Background(), Session{UserID: "stranger", Role: "user"}, "thm-1", "DFS", input)
	domainErr := asDomainError(t, err)
	if domainErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403 for non-creator, got %d", domainErr.Status)
	}

	if _, err := svc.UpdateSharedSubtopic(context.Background(), Session{UserID: "creator", Role: "user"}, "thm-1", "DFS", input); err != nil {
		t.Fatalf("creator update failed: %v", err)
	}
	if fs.themes["thm-1"].Subtopics[0].Theory != "Iterative DFS with an explicit stack." {
		t.Error("shared theory not updated")
	}
	if len(fh.commits) != 1 {
		t.Fatalf("expected 1 history commit, got %d", len(fh.commits))
	}

	// Admins may edit shared content they did not create.
	if _, err := svc.UpdateSharedSubtopic(context.Background(), Session{UserID: "boss", Role: "admin"}, "thm-1", "BFS", input); err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
}

func TestUpdateThemeInitialisesHistoryRepo(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, fh := newTestService(fs)

	input := ThemeInput{
		Name:     "Graph Algorithms",
		Category: "graph",
		Subtopics: []store.Subtopic{
			{ID: "sub-1", Name: "DFS", Theory: "Iterative depth first traversal."},
		},
	}
	if _, err := svc.UpdateTheme(context.Background(), Session{UserID: "creator", Role: "user"}, "thm-1", input); err != nil {
		t.Fatalf("UpdateTheme() error = %v", err)
	}
	if len(fh.ensures) == 0 {
		t.Error("expected the theme repo to be ensured before recording")
	}
	if len(fh.commits) != 1 {
		t.Errorf("expected 1 history commit for the changed subtopic, got %d", len(fh.commits))
	}
}

func TestCreateThemeKeepsExplicitZeroOrder(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)

	_, err := svc.CreateTheme(context.Background(), Session{UserID: "u1", UserName: "Dana"}, ThemeInput{
		Name: "Graphs",
		Subtopics: []store.Subtopic{
			{Name: "BFS", Order: 1},
			{Name: "DFS", Order: 0},
		},
	})
	if err != nil {
		t.Fatalf("CreateTheme() error = %v", err)
	}
	for _, theme := range fs.themes {
		if theme.Subtopics[0].Name != "DFS" || theme.Subtopics[0].Order != 0 {
			t.Errorf("explicit order 0 not kept: %+v", theme.Subtopics)
		}
		if theme.Subtopics[1].Name != "BFS" || theme.Subtopics[1].Order != 1 {
			t.Errorf("explicit order 1 not kept: %+v", theme.Subtopics)
		}
	}
}

func TestUpdateThemeForbiddenForNonCreator(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)

	_, err := svc.UpdateTheme(context.Background(), Session{UserID: "stranger", Role: "user"}, "thm-1", ThemeInput{Name: "Renamed"})
	domainErr := asDomainError(t, err)
	if domainErr.Status != http.StatusForbidden {
		t.Errorf("expected 403, got %d", domainErr.Status)
	}
}

func TestCreateThemeValidation(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	session := Session{UserID: "u1", UserName: "Dana", Role: "user"}

	cases := []struct {
		name  string
		input ThemeInput
	}{
		{"missing name", ThemeInput{}},
		{"bad category", ThemeInput{Name: "X", Category: "cooking"}},
		{"bad difficulty", ThemeInput{Name: "X", Difficulty: "impossible"}},
		{"duplicate subtopics", ThemeInput{Name: "X", Subtopics: []store.Subtopic{{Name: "DFS"}, {Name: "DFS"}}}},
		{"bad snippet language", ThemeInput{Name: "X", Subtopics: []store.Subtopic{
			{Name: "DFS", CodeSnippets: []store.CodeSnippet{{Language: "brainfuck", Code: "+"}}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateTheme(context.Background(), session, tc.input)
			domainErr := asDomainError(t, err)
			if domainErr.Status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", domainErr.Status)
			}
		})
	}
}

func TestUpsertNodeStatusTimestamps(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)
	session := Session{UserID: "u1"}
	ctx := context.Background()

	// Legacy alias maps onto the canonical status.
	status := "todo"
	if _, err := svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1", Status: &status}); err != nil {
		t.Fatalf("UpsertNode(todo) error = %v", err)
	}
	node, err := fs.GetNodeForTheme(ctx, "u1", "thm-1")
	if err != nil {
		t.Fatalf("node not created: %v", err)
	}
	if node.Status != store.StatusInProgress {
		t.Errorf("expected in-progress, got %s", node.Status)
	}
	if node.StartedAt == nil {
		t.Fatal("startedAt should be set on first forward transition")
	}
	if node.CompletedAt != nil {
		t.Error("completedAt should not be set yet")
	}
	startedAt := *node.StartedAt

	status = "done"
	if _, err := svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1", Status: &status}); err != nil {
		t.Fatalf("UpsertNode(done) error = %v", err)
	}
	node, _ = fs.GetNodeForTheme(ctx, "u1", "thm-1")
	if node.Status != store.StatusCompleted {
		t.Errorf("expected completed, got %s", node.Status)
	}
	if node.CompletedAt == nil {
		t.Fatal("completedAt should be set")
	}
	if !node.StartedAt.Equal(startedAt) {
		t.Error("startedAt changed on later transition")
	}

	// Regression keeps both timestamps.
	status = store.StatusNotStarted
	if _, err := svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1", Status: &status}); err != nil {
		t.Fatalf("UpsertNode(not-started) error = %v", err)
	}
	node, _ = fs.GetNodeForTheme(ctx, "u1", "thm-1")
	if node.StartedAt == nil || node.CompletedAt == nil {
		t.Error("status regression must not clear timestamps")
	}
}

func TestUpsertNodeInvalidInput(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserID: "u1"}

	bad := "paused"
	_, err := svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1", Status: &bad})
	if asDomainError(t, err).Status != http.StatusBadRequest {
		t.Error("expected 400 for unknown status")
	}

	over := 150
	_, err = svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1", Progress: &over})
	if asDomainError(t, err).Status != http.StatusBadRequest {
		t.Error("expected 400 for out-of-range progress")
	}

	_, err = svc.UpsertNode(ctx, session, NodeInput{ThemeID: "ghost"})
	if asDomainError(t, err).Status != http.StatusNotFound {
		t.Error("expected 404 for unknown theme")
	}
}

func TestUpsertNodeIdempotentPerTheme(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserID: "u1"}

	first, err := svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1"})
	if err != nil {
		t.Fatalf("first upsert error = %v", err)
	}
	second, err := svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1"})
	if err != nil {
		t.Fatalf("second upsert error = %v", err)
	}
	if first["id"] != second["id"] {
		t.Errorf("expected one node per (user, theme): %v vs %v", first["id"], second["id"])
	}
	if len(fs.nodes) != 1 {
		t.Errorf("expected 1 stored node, got %d", len(fs.nodes))
	}
}

func TestUpsertNodeCarriesInlineOverlays(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)
	ctx := context.Background()
	session := Session{UserID: "u1"}

	var input NodeInput
	raw := `{"themeId":"thm-1","subtopics":[{"name":"BFS","personalNotes":"review queue impl"}]}`
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		t.Fatalf("decode input: %v", err)
	}
	if _, err := svc.UpsertNode(ctx, session, input); err != nil {
		t.Fatalf("UpsertNode() error = %v", err)
	}

	node, err := fs.GetNodeForTheme(ctx, "u1", "thm-1")
	if err != nil {
		t.Fatalf("node not created: %v", err)
	}
	if len(node.Subtopics) != 1 || node.Subtopics[0].Notes != "review queue impl" {
		t.Fatalf("overlay not stored: %+v", node.Subtopics)
	}
	if node.Subtopics[0].ID == "" {
		t.Error("overlay should get an id")
	}

	payload, err := svc.AggregateSubtopic(ctx, session, "thm-1", "BFS")
	if err != nil {
		t.Fatalf("AggregateSubtopic() error = %v", err)
	}
	if payload["personalNotes"] != "review queue impl" {
		t.Errorf("personalNotes = %v, want the upserted overlay notes", payload["personalNotes"])
	}

	// Nameless overlays reject the whole upsert.
	bad := []store.Subtopic{{Notes: "no name"}}
	_, err = svc.UpsertNode(ctx, session, NodeInput{ThemeID: "thm-1", Subtopics: &bad})
	if asDomainError(t, err).Status != http.StatusBadRequest {
		t.Error("expected 400 for a nameless overlay")
	}
}

func TestReorderNodesRejectsForeignNode(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	fs.nodes["mine"] = store.PersonalNode{ID: "mine", UserID: "u1", ThemeID: "thm-1"}
	fs.nodes["theirs"] = store.PersonalNode{ID: "theirs", UserID: "u2", ThemeID: "thm-1"}
	svc, _ := newTestService(fs)

	_, err := svc.ReorderNodes(context.Background(), Session{UserID: "u1"}, []store.OrderAssignment{
		{ID: "mine", Order: 1},
		{ID: "theirs", Order: 0},
	})
	if asDomainError(t, err).Status != http.StatusBadRequest {
		t.Error("expected 400 when batch references a foreign node")
	}
	// All-or-nothing: the owned node keeps its old position.
	if fs.nodes["mine"].SortOrder != 0 {
		t.Error("partial reorder applied")
	}
}

func TestDeleteNodeOwnerOnly(t *testing.T) {
	fs := newFakeStore()
	fs.nodes["node-1"] = store.PersonalNode{ID: "node-1", UserID: "u1", ThemeID: "thm-1"}
	svc, _ := newTestService(fs)
	ctx := context.Background()

	err := svc.DeleteNode(ctx, Session{UserID: "u2", Role: "user"}, "node-1")
	if asDomainError(t, err).Status != http.StatusForbidden {
		t.Error("expected 403 for non-owner")
	}

	// Admins get no override on personal records.
	err = svc.DeleteNode(ctx, Session{UserID: "boss", Role: "admin"}, "node-1")
	if asDomainError(t, err).Status != http.StatusForbidden {
		t.Error("expected 403 for admin on someone else's node")
	}

	if err := svc.DeleteNode(ctx, Session{UserID: "u1", Role: "user"}, "node-1"); err != nil {
		t.Fatalf("owner delete failed: %v", err)
	}
	if _, ok := fs.nodes["node-1"]; ok {
		t.Error("node not deleted")
	}
}

func TestDeleteSubtopicGlobal(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	fs.nodes["node-1"] = store.PersonalNode{
		ID: "node-1", UserID: "u1", ThemeID: "thm-1",
		Subtopics: []store.Subtopic{{ID: "ovl-1", Name: "DFS", Notes: "mine"}},
	}
	svc, fh := newTestService(fs)
	ctx := context.Background()

	err := svc.DeleteSubtopicGlobal(ctx, Session{UserID: "creator", Role: "user"}, "thm-1", "DFS")
	if asDomainError(t, err).Status != http.StatusForbidden {
		t.Fatal("global subtopic delete must be admin-only, even for the creator")
	}

	if err := svc.DeleteSubtopicGlobal(ctx, Session{UserID: "boss", Role: "admin"}, "thm-1", "DFS"); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}

	theme := fs.themes["thm-1"]
	if _, ok := theme.FindSubtopic("DFS"); ok {
		t.Error("shared subtopic still present")
	}
	if len(fs.nodes["node-1"].Subtopics) != 0 {
		t.Error("overlay cascade did not run")
	}
	if len(fh.removals) != 1 {
		t.Errorf("expected 1 history removal, got %d", len(fh.removals))
	}

	// The aggregated view now 404s for everyone.
	_, err = svc.AggregateSubtopic(ctx, Session{UserID: "u1"}, "thm-1", "DFS")
	if asDomainError(t, err).Status != http.StatusNotFound {
		t.Error("expected 404 after global delete")
	}
}

func TestReorderSubtopicsUnknownID(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	svc, _ := newTestService(fs)

	_, err := svc.ReorderSubtopics(context.Background(), Session{UserID: "creator", Role: "user"}, "thm-1", []store.OrderAssignment{
		{ID: "sub-1", Order: 1},
		{ID: "ghost", Order: 0},
	})
	if asDomainError(t, err).Status != http.StatusBadRequest {
		t.Error("expected 400 for unknown subtopic id")
	}
	// Nothing moved.
	if fs.themes["thm-1"].Subtopics[0].Name != "DFS" {
		t.Error("partial reorder applied")
	}
}

func TestOverlayLifecycle(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	fs.nodes["node-1"] = store.PersonalNode{ID: "node-1", UserID: "u1", ThemeID: "thm-1"}
	svc, _ := newTestService(fs)
	ctx := context.Background()
	owner := Session{UserID: "u1", Role: "user"}

	created, err := svc.AddOverlay(ctx, owner, "node-1", OverlayInput{Name: "DFS", Notes: "my notes"})
	if err != nil {
		t.Fatalf("AddOverlay() error = %v", err)
	}
	overlayID, _ := created["id"].(string)
	if overlayID == "" {
		t.Fatal("expected overlay id")
	}

	_, err = svc.UpdateOverlay(ctx, Session{UserID: "u2", Role: "user"}, "node-1", overlayID, OverlayInput{Notes: "not yours"})
	if asDomainError(t, err).Status != http.StatusForbidden {
		t.Error("expected 403 for non-owner overlay update")
	}

	if _, err := svc.UpdateOverlay(ctx, owner, "node-1", overlayID, OverlayInput{Notes: "revised"}); err != nil {
		t.Fatalf("UpdateOverlay() error = %v", err)
	}
	if fs.nodes["node-1"].Subtopics[0].Notes != "revised" {
		t.Error("overlay notes not updated")
	}

	if err := svc.DeleteOverlay(ctx, owner, "node-1", overlayID); err != nil {
		t.Fatalf("DeleteOverlay() error = %v", err)
	}
	if len(fs.nodes["node-1"].Subtopics) != 0 {
		t.Error("overlay not removed")
	}
}

func TestRoadmapSurvivesThemeDeletion(t *testing.T) {
	fs := newFakeStore()
	seedTheme(fs, "creator")
	fs.nodes["node-1"] = store.PersonalNode{ID: "node-1", UserID: "u1", ThemeID: "thm-1"}
	svc, _ := newTestService(fs)
	ctx := context.Background()

	if err := svc.DeleteTheme(ctx, Session{UserID: "creator", Role: "user"}, "thm-1"); err != nil {
		t.Fatalf("DeleteTheme() error = %v", err)
	}

	items, err := svc.Roadmap(ctx, Session{UserID: "u1"})
	if err != nil {
		t.Fatalf("Roadmap() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("node should survive theme deletion, got %d items", len(items))
	}
	if items[0]["theme"] != nil {
		t.Error("expected null theme for orphaned node")
	}
}

func TestSessionLifecycle(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "dana@example.com", "correct horse", "Dana")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}

	parsed, err := svc.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserID != session.UserID {
		t.Errorf("expected user %s, got %s", session.UserID, parsed.UserID)
	}

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.UserID != session.UserID {
		t.Error("refresh changed identity")
	}

	// Refresh tokens rotate: the old one is dead.
	if _, err := svc.Refresh(ctx, session.RefreshToken); err == nil {
		t.Error("expected error reusing rotated refresh token")
	}

	// Logout blocklists the access token.
	if err := svc.Logout(ctx, refreshed, refreshed.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, refreshed.Token); err == nil {
		t.Error("expected revoked access token to be rejected")
	}
	if _, err := svc.Refresh(ctx, refreshed.RefreshToken); err == nil {
		t.Error("expected revoked refresh token to be rejected")
	}
}
