package content

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var errStop = errors.New("stop")

// GitLastModified returns the committer time of the newest commit touching each of
// rels, which are relative to the content root. The repository is found by walking up
// from root. Files without history are absent from the result. At most maxCommits
// commits are examined; zero means no limit. ErrNoRepository is returned when root is
// not inside a git repository.
func GitLastModified(root string, rels []string, maxCommits int) (map[string]time.Time, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNoRepository
	}
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	prefix, err := filepath.Rel(wt.Filesystem.Root(), absRoot)
	if err != nil {
		return nil, err
	}
	prefix = filepath.ToSlash(prefix)

	// repository path -> content path
	wanted := make(map[string]string, len(rels))
	for _, rel := range rels {
		key := rel
		if prefix != "." {
			key = prefix + "/" + rel
		}
		wanted[key] = rel
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, err
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	dates := make(map[string]time.Time, len(rels))
	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if len(wanted) == 0 || (maxCommits > 0 && count >= maxCommits) {
			return errStop
		}
		count++
		stats, err := c.Stats()
		if err != nil {
			return nil
		}
		for _, st := range stats {
			name := st.Name
			if _, to, ok := strings.Cut(name, " => "); ok {
				name = to
			}
			if rel, ok := wanted[name]; ok {
				dates[rel] = c.Committer.When.UTC()
				delete(wanted, name)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return dates, nil
}
