// Package baseline persists promoted risk snapshots and computes deltas
// against them. The store is the only mutable shared resource in the scoring
// core: reads are unrestricted, writes happen exclusively through the
// access-controlled promotion path.
package baseline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/uatu-sec/riskgate/api/schemas"
)

// Sentinel errors for baseline access and mutation.
var (
	// ErrNotFound means no baseline entry exists for the id (first run).
	ErrNotFound = errors.New("baseline not found")
	// ErrBaselineCorrupt means a persisted baseline failed to parse. Callers
	// must treat it as first-run semantics with a warning, never as a trusted
	// zero-risk record.
	ErrBaselineCorrupt = errors.New("baseline corrupt")
	// ErrPolicyViolation means a promotion was attempted from an unauthorized
	// context. It is raised before any write happens.
	ErrPolicyViolation = errors.New("baseline promotion policy violation")
)

// PortfolioID is the reserved id under which the portfolio-wide baseline is
// stored.
const PortfolioID = "portfolio"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PromotionContext describes the pipeline context requesting a promotion.
// It is built by the caller from its CI environment; the store only judges it.
type PromotionContext struct {
	// Branch is the CI branch the pipeline runs on.
	Branch string
	// PullRequest is true when the pipeline was triggered by an untrusted
	// pull-request context.
	PullRequest bool
	// GatePassed records whether the context's own gate evaluation passed.
	GatePassed bool
	// Actor identifies who or what triggered the pipeline, for audit logs.
	Actor string
}

// Policy decides whether a promotion context is authorized.
type Policy struct {
	// ProtectedBranches are the only branches promotions may originate from.
	ProtectedBranches []string
}

// Authorize returns ErrPolicyViolation (wrapped with the reason) when the
// context may not promote. A hostile pull request must never be able to
// rewrite its own baseline to always pass.
func (p Policy) Authorize(pctx PromotionContext) error {
	if pctx.PullRequest {
		return fmt.Errorf("%w: promotion from a pull-request context is not allowed", ErrPolicyViolation)
	}
	if !pctx.GatePassed {
		return fmt.Errorf("%w: promotion requires a passed gate in the same pipeline", ErrPolicyViolation)
	}
	for _, b := range p.ProtectedBranches {
		if strings.EqualFold(b, pctx.Branch) {
			return nil
		}
	}
	return fmt.Errorf("%w: branch %q is not a protected branch", ErrPolicyViolation, pctx.Branch)
}

// Store is a file-backed baseline store, one JSON file per contract id plus
// one portfolio-wide file. Promotions are serialized per id and replace the
// file atomically, so an interrupted promotion leaves the old baseline intact.
type Store struct {
	dir    string
	policy Policy
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a baseline store rooted at dir. The directory is created
// lazily by the first promotion; loads never create files.
func NewStore(dir string, policy Policy, logger *zap.Logger) *Store {
	return &Store{
		dir:    dir,
		policy: policy,
		logger: logger.Named("baseline"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// LoadContract reads the promoted baseline for a contract id. It returns
// ErrNotFound when no entry exists and ErrBaselineCorrupt when the persisted
// record fails to parse.
func (s *Store) LoadContract(id string) (*schemas.ContractRisk, error) {
	var rec schemas.ContractRisk
	if err := s.load(id, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadPortfolio reads the promoted portfolio-wide baseline.
func (s *Store) LoadPortfolio() (*schemas.PortfolioSnapshot, error) {
	var snap schemas.PortfolioSnapshot
	if err := s.load(PortfolioID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) load(id string, out any) error {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to read baseline %s: %w", id, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBaselineCorrupt, id, err)
	}
	return nil
}

// PromoteContract atomically replaces the baseline for rec's contract id.
// It is the only mutating operation on contract baselines and is rejected
// with ErrPolicyViolation, before any write, when pctx is unauthorized.
func (s *Store) PromoteContract(pctx PromotionContext, rec *schemas.ContractRisk) error {
	if rec == nil || rec.ContractID == "" {
		return fmt.Errorf("cannot promote an empty contract record")
	}
	return s.promote(pctx, rec.ContractID, rec)
}

// PromotePortfolio atomically replaces the portfolio-wide baseline.
func (s *Store) PromotePortfolio(pctx PromotionContext, snap *schemas.PortfolioSnapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot promote a nil portfolio snapshot")
	}
	return s.promote(pctx, PortfolioID, snap)
}

func (s *Store) promote(pctx PromotionContext, id string, record any) error {
	if err := s.policy.Authorize(pctx); err != nil {
		s.logger.Warn("Rejected baseline promotion",
			zap.String("id", id),
			zap.String("branch", pctx.Branch),
			zap.String("actor", pctx.Actor),
			zap.Error(err))
		return err
	}

	// Single writer per id; promotions of different ids stay independent.
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode baseline %s: %w", id, err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}

	// Write-to-temp-then-rename keeps the old baseline intact if the process
	// dies mid-write.
	tmp, err := os.CreateTemp(s.dir, "."+sanitizeID(id)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp baseline file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp baseline file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp baseline file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace baseline %s: %w", id, err)
	}

	s.logger.Info("Baseline promoted",
		zap.String("id", id),
		zap.String("branch", pctx.Branch),
		zap.String("actor", pctx.Actor))
	return nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[id] = l
	return l
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, sanitizeID(id)+".json")
}

// sanitizeID keeps contract ids from escaping the baseline directory.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, id)
}
