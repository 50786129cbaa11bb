// Package registry implements the durable, conflict-aware project catalog
// of spec §3 and §4.B.
package registry

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/idgen"
	"github.com/hack-dance/hackd/pkg/utils"
)

// errConcurrentModification signals that persist observed an on-disk
// revision different from the one this Store last wrote, meaning another
// process edited registry.json between our load and our write (§4.B).
var errConcurrentModification = stderrors.New("registry revision mismatch")

// Project is the persisted record described in spec §3.
type Project struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	RepoRoot          string     `json:"repoRoot"`
	ProjectDir        string     `json:"projectDir"`
	DevHost           *string    `json:"devHost"`
	ConfigFingerprint *string    `json:"configFingerprint"`
	FirstSeenAt       time.Time  `json:"firstSeenAt"`
	LastSeenAt        time.Time  `json:"lastSeenAt"`
}

// document is the on-disk shape of registry.json.
type document struct {
	Revision int        `json:"revision"`
	Projects []*Project `json:"projects"`
}

// Context is the input to Upsert: what an operation observed about a
// project it references.
type Context struct {
	RepoRoot   string
	ProjectDir string
	Name       string // explicit name; if empty, derived from RepoRoot's basename
	DevHost    string
}

// UpsertStatus is the outcome discriminant of Upsert.
type UpsertStatus string

const (
	StatusInserted UpsertStatus = "inserted"
	StatusUpdated  UpsertStatus = "updated"
	StatusConflict UpsertStatus = "conflict"
)

// UpsertResult is returned by Upsert.
type UpsertResult struct {
	Status    UpsertStatus
	Project   *Project
	Incumbent *Project
	Incoming  *Project
}

const maxRetries = 5

// Store is the in-memory projection of registry.json plus its name index,
// guarded by an in-process exclusive lock per spec §5.
type Store struct {
	path string
	log  *logrus.Entry

	mu       deadlock.Mutex
	byID     map[string]*Project
	byName   map[string]string // lower(name) -> id
	revision int
}

// Open loads the registry from path, tolerating an absent file (treated as
// empty) and quarantining a corrupt one per §4.B.
func Open(path string, log *logrus.Entry) (*Store, error) {
	s := &Store{
		path:   path,
		log:    log,
		byID:   map[string]*Project{},
		byName: map[string]string{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if len(data) == 0 {
		return nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.quarantine(data, err)
		return nil
	}

	s.revision = doc.Revision
	s.byID = make(map[string]*Project, len(doc.Projects))
	s.byName = make(map[string]string, len(doc.Projects))
	for _, p := range doc.Projects {
		s.byID[p.ID] = p
		s.byName[strings.ToLower(p.Name)] = p.ID
	}
	return nil
}

// quarantine backs up an unreadable document with a .bad.<ts> suffix and
// resets in-memory state to empty, per §4.B's corruption handling.
func (s *Store) quarantine(data []byte, cause error) {
	backup := fmt.Sprintf("%s.bad.%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(backup, data, 0o644); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to back up corrupt registry document")
	}
	if s.log != nil {
		s.log.WithError(cause).Warnf("registry document was corrupt (%s); quarantined to %s and reset to empty", utils.FormatDecimalBytes(int64(len(data))), backup)
	}
	s.revision = 0
	s.byID = map[string]*Project{}
	s.byName = map[string]string{}
}

// IndexMatchesScratch reports whether the name index equals the one
// computed from scratch over byID, the invariant checked by spec §8
// property 1.
func (s *Store) IndexMatchesScratch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.byName) != len(s.byID) {
		return false
	}
	for id, p := range s.byID {
		if s.byName[strings.ToLower(p.Name)] != id {
			return false
		}
	}
	return true
}

// readRevision reads just the revision field of the document at path,
// without disturbing in-memory state. An absent or empty file reads as
// revision 0, matching a fresh Store.
func readRevision(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var doc struct {
		Revision int `json:"revision"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, err
	}
	return doc.Revision, nil
}

// persist writes the in-memory state to disk, first checking that the
// on-disk revision still matches what this Store last wrote (§4.B's
// "in-file revision counter used to detect concurrent external edits"). On
// a mismatch it reloads from disk and reports errConcurrentModification so
// the caller can retry against the fresh state instead of clobbering it.
func (s *Store) persist() error {
	onDisk, err := readRevision(s.path)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if onDisk != s.revision {
		if loadErr := s.load(); loadErr != nil {
			return loadErr
		}
		return errConcurrentModification
	}

	nextRevision := s.revision + 1
	doc := document{
		Revision: nextRevision,
		Projects: s.sortedLocked(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	s.revision = nextRevision
	return nil
}

func (s *Store) sortedLocked() []*Project {
	out := lo.MapToSlice(s.byID, func(_ string, p *Project) *Project { return p })
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

func slug(ctx Context) string {
	if ctx.Name != "" {
		return ctx.Name
	}
	return filepath.Base(filepath.Clean(ctx.RepoRoot))
}

// Upsert implements the upsert-on-touch lifecycle of §3/§4.B.
func (s *Store) Upsert(ctx Context) (*UpsertResult, error) {
	name := slug(ctx)

	for attempt := 0; attempt < maxRetries; attempt++ {
		s.mu.Lock()
		result, mutated := s.upsertLocked(name, ctx)
		var persistErr error
		if mutated {
			persistErr = s.persist()
		}
		s.mu.Unlock()

		if persistErr == nil {
			return result, nil
		}
		if s.log != nil {
			s.log.WithError(persistErr).Warnf("registry write attempt %d failed, retrying", attempt+1)
		}
	}

	return nil, apierrors.New(apierrors.CodeConcurrentModification, "registry write retries exhausted")
}

func (s *Store) upsertLocked(name string, ctx Context) (*UpsertResult, bool) {
	now := time.Now().UTC()

	if id, ok := s.byName[strings.ToLower(name)]; ok {
		incumbent := s.byID[id]
		if incumbent.RepoRoot == ctx.RepoRoot {
			incumbent.LastSeenAt = now
			if ctx.DevHost != "" {
				dh := ctx.DevHost
				incumbent.DevHost = &dh
			}
			return &UpsertResult{Status: StatusUpdated, Project: incumbent}, true
		}

		incoming := &Project{
			Name:        name,
			RepoRoot:    ctx.RepoRoot,
			ProjectDir:  ctx.ProjectDir,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		return &UpsertResult{Status: StatusConflict, Incumbent: incumbent, Incoming: incoming}, false
	}

	p := &Project{
		ID:          idgen.New("prj"),
		Name:        name,
		RepoRoot:    ctx.RepoRoot,
		ProjectDir:  ctx.ProjectDir,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	if ctx.DevHost != "" {
		dh := ctx.DevHost
		p.DevHost = &dh
	}
	s.byID[p.ID] = p
	s.byName[strings.ToLower(name)] = p.ID
	return &UpsertResult{Status: StatusInserted, Project: p}, true
}

// ResolveByName performs a case-insensitive lookup, returning nil if absent.
func (s *Store) ResolveByName(name string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return s.byID[id]
}

// ResolveByID returns the project with the given id, or nil if absent.
func (s *Store) ResolveByID(id string) *Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// Remove deletes entries whose id is in ids; unknown ids are a no-op. It
// retries on a concurrent-modification reload the same way Upsert does,
// since a reload may change which ids are still present.
func (s *Store) Remove(ids []string) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		s.mu.Lock()
		removed := false
		for _, id := range ids {
			p, ok := s.byID[id]
			if !ok {
				continue
			}
			delete(s.byID, id)
			delete(s.byName, strings.ToLower(p.Name))
			removed = true
		}
		var persistErr error
		if removed {
			persistErr = s.persist()
		}
		s.mu.Unlock()

		if persistErr == nil {
			return nil
		}
		if !stderrors.Is(persistErr, errConcurrentModification) {
			return persistErr
		}
		if s.log != nil {
			s.log.WithError(persistErr).Warnf("registry remove attempt %d failed, retrying", attempt+1)
		}
	}

	return apierrors.New(apierrors.CodeConcurrentModification, "registry write retries exhausted")
}

// List returns all projects sorted by name.
func (s *Store) List() []*Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Revision returns the current document revision, for tests verifying that
// a conflicting upsert leaves the store unchanged.
func (s *Store) Revision() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}
