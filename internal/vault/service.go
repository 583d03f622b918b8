// Package vault stores document files in per-document git repositories.
// Every check-in is a commit, so the full file history stays available
// without ever mutating past versions.
package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
)

// CommitInfo describes one vault commit.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

// WorkingCopy is a checked-out file a user can edit outside the vault.
type WorkingCopy struct {
	Session string
	Path    string
}

type Service struct {
	baseDir string
	workDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a vault rooted at baseDir with working copies checked out
// under workDir.
func New(baseDir, workDir string) *Service {
	return &Service{
		baseDir: baseDir,
		workDir: workDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// EnsureDocumentRepo initializes the per-document repository with the
// given file as its baseline commit. Calling it again for an existing
// document is a no-op.
func (s *Service) EnsureDocumentRepo(documentID, filename string, content []byte, author string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(documentID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
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
	if err := os.WriteFile(filepath.Join(path, filename), content, 0o644); err != nil {
		return fmt.Errorf("write initial file: %w", err)
	}
	if _, err := worktree.Add(filename); err != nil {
		return fmt.Errorf("git add initial file: %w", err)
	}
	hash, err := worktree.Commit("Import document baseline", &git.CommitOptions{
		Author: authorSignature(author),
	})
	if err != nil {
		return fmt.Errorf("commit initial file: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
		return fmt.Errorf("set main branch ref: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	return nil
}

// CheckOut copies the head revision of the document file into a fresh
// working directory and returns the copy. The vault itself is never
// edited directly.
func (s *Service) CheckOut(documentID, filename string) (WorkingCopy, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	session := uuid.NewString()
	dest := filepath.Join(s.workDir, session)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return WorkingCopy{}, fmt.Errorf("create working dir: %w", err)
	}

	src := filepath.Join(s.repoPath(documentID), filename)
	target := filepath.Join(dest, filename)
	if err := copyFile(src, target); err != nil {
		return WorkingCopy{}, fmt.Errorf("check out %s: %w", filename, err)
	}
	return WorkingCopy{Session: session, Path: target}, nil
}

// CheckIn copies the edited file from sourcePath back into the vault
// and commits it. It returns the new commit.
func (s *Service) CheckIn(documentID, filename, sourcePath, author, message string) (CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	target := filepath.Join(worktree.Filesystem.Root(), filename)
	if err := copyFile(sourcePath, target); err != nil {
		return CommitInfo{}, fmt.Errorf("check in %s: %w", filename, err)
	}

	if _, err := worktree.Add(filename); err != nil {
		return CommitInfo{}, fmt.Errorf("git add %s: %w", filename, err)
	}

	if message == "" {
		message = "Update document file"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            authorSignature(author),
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit %s: %w", filename, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// DiscardWorkingCopy removes a checked-out session directory.
func (s *Service) DiscardWorkingCopy(session string) error {
	if session == "" {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(s.workDir, session)); err != nil {
		return fmt.Errorf("discard working copy %s: %w", session, err)
	}
	return nil
}

// HeadFile returns the current vault content of the document file.
func (s *Service) HeadFile(documentID, filename string) ([]byte, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(filepath.Join(s.repoPath(documentID), filename))
	if err != nil {
		return nil, fmt.Errorf("read head file: %w", err)
	}
	return data, nil
}

// FileAtCommit returns the document file as of a specific commit.
func (s *Service) FileAtCommit(documentID, filename, hash string) ([]byte, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(filename)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", filename, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open file reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read file bytes: %w", err)
	}
	return data, nil
}

// History lists the vault commits for a document, newest first.
func (s *Service) History(documentID string, limit int) ([]CommitInfo, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(documentID))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
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

// CopyToDestination copies a vault head file to an external path,
// retrying briefly. Destinations on network shares occasionally hold a
// transient lock right after the previous copy.
func (s *Service) CopyToDestination(documentID, filename, destination string) error {
	data, err := s.HeadFile(documentID, filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
		if lastErr = os.WriteFile(destination, data, 0o644); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("copy to %s: %w", destination, lastErr)
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[documentID] = lock
	return lock
}

func authorSignature(author string) *object.Signature {
	return &object.Signature{
		Name:  author,
		Email: fmt.Sprintf("%s@local.qmdoc.dev", sanitizeEmail(author)),
		When:  time.Now(),
	}
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
