// Package history keeps a git-backed audit trail of shared subtopic content.
// Each theme gets its own repository with a single main branch; every shared
// edit lands as one commit touching that subtopic's file.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"algomap/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// CommitInfo describes one revision of a subtopic's shared content.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureThemeRepo initialises the theme's repository if it does not exist.
func (s *Service) EnsureThemeRepo(themeID, author string) error {
	lock := s.themeLock(themeID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(themeID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(path, "subtopics"), 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, ".keep"), nil, 0o644); err != nil {
		return fmt.Errorf("write keep file: %w", err)
	}
	if _, err := worktree.Add(".keep"); err != nil {
		return fmt.Errorf("git add keep file: %w", err)
	}
	hash, err := worktree.Commit("Initialize theme history", &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial content: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// RecordSubtopic commits a snapshot of the subtopic's shared content.
func (s *Service) RecordSubtopic(themeID string, subtopic store.Subtopic, author, message string) (CommitInfo, error) {
	lock := s.themeLock(themeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(themeID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(subtopic, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal subtopic: %w", err)
	}

	relative := subtopicFile(subtopic.Name)
	full := filepath.Join(worktree.Filesystem.Root(), relative)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create subtopics dir: %w", err)
	}
	if err := os.WriteFile(full, append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write subtopic file: %w", err)
	}
	if _, err := worktree.Add(relative); err != nil {
		return CommitInfo{}, fmt.Errorf("git add subtopic: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: signature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit subtopic: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// RemoveSubtopic commits the removal of a subtopic's file. Silently succeeds
// when the file was never recorded.
func (s *Service) RemoveSubtopic(themeID, subtopicName, author string) error {
	lock := s.themeLock(themeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(themeID))
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	relative := subtopicFile(subtopicName)
	if _, err := os.Stat(filepath.Join(worktree.Filesystem.Root(), relative)); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if _, err := worktree.Remove(relative); err != nil {
		return fmt.Errorf("git rm subtopic: %w", err)
	}
	if _, err := worktree.Commit(fmt.Sprintf("Remove subtopic %s", subtopicName), &git.CommitOptions{
		Author: signature(author),
	}); err != nil {
		return fmt.Errorf("commit subtopic removal: %w", err)
	}
	return nil
}

// History lists revisions that touched the subtopic's file, newest first.
func (s *Service) History(themeID, subtopicName string, limit int) ([]CommitInfo, error) {
	lock := s.themeLock(themeID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(themeID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main branch: %w", err)
	}

	fileName := subtopicFile(subtopicName)
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash(), FileName: &fileName})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

func (s *Service) repoPath(themeID string) string {
	return filepath.Join(s.baseDir, themeID)
}

func (s *Service) themeLock(themeID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[themeID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[themeID] = lock
	return lock
}

// subtopicFile maps a subtopic name onto a stable path inside the repo.
// Names may carry spaces or punctuation, so everything outside a safe set
// collapses to dashes.
func subtopicFile(name string) string {
	runes := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		runes = append(runes, '-')
	}
	if len(runes) == 0 {
		runes = []rune("unnamed")
	}
	return "subtopics/" + string(runes) + ".json"
}

func signature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.algomap.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func sanitizeEmail(input string) string {
	runes := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			runes = append(runes, '.')
		}
	}
	if len(runes) == 0 {
		return "user"
	}
	return string(runes)
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}
