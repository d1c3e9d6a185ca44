package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type User struct {
	ID            string
	DisplayName   string
	Email         string
	PasswordHash  string
	Role          string
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Theme categories and difficulty levels accepted on write.
var (
	ThemeCategories = []string{"algorithms", "data-structures", "math", "strings", "graph", "dp", "greedy", "geometry", "other"}
	ThemeDifficulties = []string{"beginner", "intermediate", "advanced", "expert"}
	ProblemDifficulties = []string{"easy", "medium", "hard", "very-hard"}
	SnippetLanguages = []string{"python", "cpp"}
)

// CodeSnippet is a shared or personal code sample attached to a subtopic.
type CodeSnippet struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// LinkedProblem references an external practice problem.
type LinkedProblem struct {
	ProblemID   string `json:"problemId,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Link        string `json:"link,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"`
}

// ResourceLink is a named external resource.
type ResourceLink struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Subtopic is one named unit of content. The same shape serves both the
// shared entries inside a Theme (Theory populated) and the personal
// overlays inside a PersonalNode (Notes populated, addressed by ID).
type Subtopic struct {
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Theory       string          `json:"theory,omitempty"`
	Notes        string          `json:"personalNotes,omitempty"`
	CodeSnippets []CodeSnippet   `json:"codeSnippets,omitempty"`
	Problems     []LinkedProblem `json:"problems,omitempty"`
	Resources    []ResourceLink  `json:"resources,omitempty"`
	Order        int             `json:"order"`
}

type Theme struct {
	ID          string
	Name        string
	Description string
	Category    string
	Difficulty  string
	Tags        []string
	CreatedBy   string
	CreatorName string
	IsPublic    bool
	Subtopics   []Subtopic
	SortOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FindSubtopic locates a shared subtopic by exact name. Names are unique
// within a theme.
func (t *Theme) FindSubtopic(name string) (Subtopic, bool) {
	for _, sub := range t.Subtopics {
		if sub.Name == name {
			return sub, true
		}
	}
	return Subtopic{}, false
}

// Progress statuses. Legacy aliases from older clients map onto the
// canonical set.
const (
	StatusNotStarted = "not-started"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusMastered   = "mastered"
)

// NormalizeStatus maps legacy aliases and reports whether the value is
// acceptable at all.
func NormalizeStatus(status string) (string, bool) {
	switch status {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusMastered:
		return status, true
	case "todo":
		return StatusInProgress, true
	case "done":
		return StatusCompleted, true
	default:
		return "", false
	}
}

type PersonalNode struct {
	ID             string
	UserID         string
	ThemeID        string
	Status         string
	Progress       int
	Notes          string
	DueDate        *time.Time
	Subtopics      []Subtopic
	SolvedProblems []string
	SortOrder      int
	StartedAt      *time.Time
	CompletedAt    *time.Time
	LastPracticed  *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Theme is populated on roadmap reads. Nil when the referenced theme
	// has been deleted (themes do not cascade into personal nodes).
	Theme *Theme
}

// FindOverlay locates a personal overlay by its internal id.
func (n *PersonalNode) FindOverlay(subtopicID string) (int, bool) {
	for i, sub := range n.Subtopics {
		if sub.ID == subtopicID {
			return i, true
		}
	}
	return -1, false
}

type Team struct {
	ID        string
	Name      string
	CreatedBy string
	Template  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TeamMember struct {
	TeamID   string
	UserID   string
	UserName string
	Active   bool
}

type TeamLink struct {
	ID        string
	TeamID    string
	Title     string
	URL       string
	CreatedBy string
	CreatedAt time.Time
}

type TeamAchievement struct {
	ID          string
	TeamID      string
	Title       string
	Description string
	Icon        string
	CreatedBy   string
	CreatedAt   time.Time
}

// OrderAssignment is one row of a bulk reorder request.
type OrderAssignment struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// UserRef is a reference to a user that request payloads may carry either
// as a bare id string or as an expanded object. ParseUserRef is the single
// place that distinguishes the two shapes.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Expanded bool   `json:"-"`
}

func ParseUserRef(raw json.RawMessage) (UserRef, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return UserRef{}, nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return UserRef{}, fmt.Errorf("parse user ref: %w", err)
		}
		return UserRef{ID: id}, nil
	}
	var ref UserRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return UserRef{}, fmt.Errorf("parse user ref: %w", err)
	}
	ref.Expanded = ref.Username != "" || ref.FullName != ""
	return ref, nil
}
