// Package tokens implements the gateway credential store of spec §3 and
// §4.C: scoped tokens with atomic mint/rotate/revoke and constant-time
// verification.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/idgen"
	"github.com/hack-dance/hackd/pkg/utils"
)

// Scope is a token capability per the GLOSSARY.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

func (s Scope) Valid() bool {
	return s == ScopeRead || s == ScopeWrite
}

// Record is the persisted, secret-free shape of a GatewayToken.
type Record struct {
	ID        string     `json:"id"`
	Label     *string    `json:"label"`
	Scope     Scope      `json:"scope"`
	Hash      string     `json:"hash"`
	ProjectID *string    `json:"projectId"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt"`
}

type document struct {
	Revision int       `json:"revision"`
	Salt     string    `json:"salt"`
	Tokens   []*Record `json:"tokens"`
}

const maxRetries = 5

// MintRequest is the input to Mint.
type MintRequest struct {
	Label     string
	Scope     Scope
	ProjectID string
}

// MintResult carries the plaintext secret, which is never persisted and
// never returned again.
type MintResult struct {
	Record *Record
	Secret string
}

// Store guards tokens.json with its own in-process lock, independent of the
// registry's lock per §5.
type Store struct {
	path string
	log  *logrus.Entry

	mu       deadlock.Mutex
	salt     string
	byID     map[string]*Record
	revision int
}

// Open loads tokens.json, minting a fresh per-install salt if the document
// is new, and quarantining a corrupt document as the registry store does.
func Open(path string, log *logrus.Entry) (*Store, error) {
	s := &Store{path: path, log: log, byID: map[string]*Record{}}
	if err := s.load(); err != nil {
		return nil, err
	}
	if s.salt == "" {
		s.salt = newSalt()
	}
	return s, nil
}

func newSalt() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
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
	s.salt = doc.Salt
	s.byID = make(map[string]*Record, len(doc.Tokens))
	for _, t := range doc.Tokens {
		s.byID[t.ID] = t
	}
	return nil
}

func (s *Store) quarantine(data []byte, cause error) {
	backup := s.path + ".bad." + time.Now().UTC().Format("20060102T150405.000000000Z")
	if err := os.WriteFile(backup, data, 0o644); err != nil && s.log != nil {
		s.log.WithError(err).Warn("failed to back up corrupt token document")
	}
	if s.log != nil {
		s.log.WithError(cause).Warnf("token document was corrupt (%s); quarantined to %s and reset to empty", utils.FormatBinaryBytes(int64(len(data))), backup)
	}
	s.revision = 0
	s.salt = ""
	s.byID = map[string]*Record{}
}

func (s *Store) persist() error {
	s.revision++
	doc := document{Revision: s.revision, Salt: s.salt, Tokens: s.sortedLocked()}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.revision--
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.revision--
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.revision--
		return apierrors.Wrap(apierrors.CodeInternal, err)
	}
	return nil
}

func (s *Store) sortedLocked() []*Record {
	out := make([]*Record, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	// oldest first, per §4.C's list() contract.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (s *Store) hash(secret string) string {
	sum := sha256.Sum256([]byte(s.salt + secret))
	return hex.EncodeToString(sum[:])
}

// Mint generates a new secret, persists its record, and enforces T1: a
// second mint for the same (projectId, label) pair revokes the prior token
// atomically within the same write.
func (s *Store) Mint(req MintRequest) (*MintResult, error) {
	if req.Scope != "" && !req.Scope.Valid() {
		return nil, apierrors.New(apierrors.CodeInvalidScope, string(req.Scope))
	}
	if req.Scope == "" {
		req.Scope = ScopeRead
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CodeInternal, err)
	}

	var result *MintResult
	for attempt := 0; attempt < maxRetries; attempt++ {
		s.mu.Lock()
		result = s.mintLocked(req, secret)
		err = s.persist()
		s.mu.Unlock()

		if err == nil {
			return result, nil
		}
		if s.log != nil {
			s.log.WithError(err).Warnf("token write attempt %d failed, retrying", attempt+1)
		}
	}

	return nil, apierrors.New(apierrors.CodeConcurrentModification, "token write retries exhausted")
}

func (s *Store) mintLocked(req MintRequest, secret string) *MintResult {
	now := time.Now().UTC()

	if req.Label != "" {
		for _, r := range s.byID {
			if r.RevokedAt != nil {
				continue
			}
			if labelEq(r.Label, req.Label) && projectEq(r.ProjectID, req.ProjectID) {
				r.RevokedAt = &now
			}
		}
	}

	rec := &Record{
		ID:        idgen.New("tok"),
		Scope:     req.Scope,
		Hash:      s.hash(secret),
		CreatedAt: now,
	}
	if req.Label != "" {
		label := req.Label
		rec.Label = &label
	}
	if req.ProjectID != "" {
		pid := req.ProjectID
		rec.ProjectID = &pid
	}
	s.byID[rec.ID] = rec

	return &MintResult{Record: rec, Secret: secret}
}

func labelEq(a *string, b string) bool {
	return a != nil && *a == b
}

func projectEq(a *string, b string) bool {
	if a == nil {
		return b == ""
	}
	return *a == b
}

// Verify performs a constant-time comparison of secret's digest against
// every non-revoked record, satisfying T2 and the timing-oracle resistance
// requirement of §4.C: the loop always runs over every record regardless
// of where (or whether) a match occurs.
func (s *Store) Verify(secret string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest := s.hash(secret)
	var found *Record
	for _, r := range s.byID {
		if r.RevokedAt != nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(digest), []byte(r.Hash)) == 1 {
			found = r
		}
	}
	if found == nil {
		return nil, false
	}
	cp := *found
	return &cp, true
}

// List returns records without secrets, oldest first.
func (s *Store) List() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Revoke sets revokedAt; idempotent, and a no-op for unknown ids beyond
// returning UnknownToken so callers can distinguish the two outcomes if
// they care to.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	rec, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return apierrors.New(apierrors.CodeUnknownToken, id)
	}
	if rec.RevokedAt == nil {
		now := time.Now().UTC()
		rec.RevokedAt = &now
		err := s.persist()
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32) // 256 bits
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
