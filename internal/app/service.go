package app

import (
	"context"
	"time"

	"algomap/api/internal/auth"
	"algomap/api/internal/authpw"
	"algomap/api/internal/config"
	"algomap/api/internal/history"
	"algomap/api/internal/search"
	"algomap/api/internal/store"
	"algomap/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)

	ListPublicThemes(context.Context) ([]store.Theme, error)
	GetTheme(context.Context, string) (store.Theme, error)
	InsertTheme(context.Context, store.Theme) error
	UpdateTheme(context.Context, store.Theme) error
	UpdateThemeSubtopics(context.Context, string, []store.Subtopic) error
	DeleteTheme(context.Context, string) error
	RemoveOverlaysByName(context.Context, string, string) error

	GetNodeByID(context.Context, string) (store.PersonalNode, error)
	GetNodeForTheme(context.Context, string, string) (store.PersonalNode, error)
	ListNodesForUser(context.Context, string) ([]store.PersonalNode, error)
	UpsertNode(context.Context, store.PersonalNode) (store.PersonalNode, error)
	UpdateNode(context.Context, store.PersonalNode) error
	DeleteNode(context.Context, string, string) (bool, error)
	ReorderNodes(context.Context, string, []store.OrderAssignment) error

	InsertTeam(context.Context, store.Team) error
	ListTeams(context.Context) ([]store.Team, error)
	GetTeam(context.Context, string) (store.Team, error)
	UpdateTeamTemplate(context.Context, string, []string) error
	UpsertTeamMember(context.Context, string, string, bool) error
	ListTeamMembers(context.Context, string) ([]store.TeamMember, error)
	IsActiveTeamMember(context.Context, string, string) (bool, error)
	InsertTeamLink(context.Context, store.TeamLink) error
	ListTeamLinks(context.Context, string) ([]store.TeamLink, error)
	DeleteTeamLink(context.Context, string, string) (bool, error)
	InsertTeamAchievement(context.Context, store.TeamAchievement) error
	ListTeamAchievements(context.Context, string) ([]store.TeamAchievement, error)
	DeleteTeamAchievement(context.Context, string, string) (bool, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens and the access-token blocklist. Backed
// by Redis when configured, by Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type historyService interface {
	EnsureThemeRepo(themeID, author string) error
	RecordSubtopic(themeID string, subtopic store.Subtopic, author, message string) (history.CommitInfo, error)
	RemoveSubtopic(themeID, subtopicName, author string) error
	History(themeID, subtopicName string, limit int) ([]history.CommitInfo, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	history  historyService
	search   *search.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, historySvc *history.Service, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		history:  historySvc,
		search:   searchSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignUp registers an account and signs the new user in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.authpw.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.DisplayName, user.Role, jti, expiresAt)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Subject,
		UserName:  claims.Name,
		Role:      claims.Role,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}
