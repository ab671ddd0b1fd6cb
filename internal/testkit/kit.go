package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"genescore/adapters/genesets"
	"genescore/adapters/rng"
	"genescore/domain/core"
	"genescore/domain/dataset"
	"genescore/domain/run"
	"genescore/ports"
)

// TestKit provides testing utilities and fixtures
type TestKit struct {
	repo *InMemoryScoreRepository
}

// NewTestKit creates a new test kit with an empty in-memory repository
func NewTestKit() *TestKit {
	return &TestKit{repo: NewInMemoryScoreRepository()}
}

// RNGAdapter returns the production RNG adapter; it is deterministic
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return rng.NewPCGAdapter()
}

// Repository returns the shared in-memory repository
func (t *TestKit) Repository() *InMemoryScoreRepository {
	return t.repo
}

// Expression generates a synthetic dataset with default settings
func (t *TestKit) Expression() (*Expression, error) {
	return NewExpressionGenerator(DefaultExpressionConfig()).Generate()
}

// ============================================================================
// FAKE SOURCES
// ============================================================================

// FakeMatrixReader serves datasets registered by path
type FakeMatrixReader struct {
	Datasets map[string]*dataset.Dataset
}

var _ ports.MatrixReader = (*FakeMatrixReader)(nil)

// ReadMatrix returns the dataset registered for path
func (f *FakeMatrixReader) ReadMatrix(ctx context.Context, path string) (*dataset.Dataset, error) {
	if d, ok := f.Datasets[path]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: matrix %s", core.ErrNotFound, path)
}

// FakeGeneSetSource serves gene sets registered by path and selects them
// the way the file adapter does
type FakeGeneSetSource struct {
	Sets map[string][]dataset.GeneSet
}

var _ ports.GeneSetSource = (*FakeGeneSetSource)(nil)

// ReadGeneSets returns the sets registered for path
func (f *FakeGeneSetSource) ReadGeneSets(ctx context.Context, path string) ([]dataset.GeneSet, error) {
	if sets, ok := f.Sets[path]; ok {
		return sets, nil
	}
	return nil, fmt.Errorf("%w: gene sets %s", core.ErrNotFound, path)
}

// SelectGeneSets applies a name filter
func (f *FakeGeneSetSource) SelectGeneSets(sets []dataset.GeneSet, filter string) ([]dataset.GeneSet, error) {
	return genesets.Filter(sets, filter)
}

// ============================================================================
// REPOSITORIES
// ============================================================================

// InMemoryScoreRepository implements ports.ScoreRepository in memory
type InMemoryScoreRepository struct {
	runs map[core.RunID]*run.Run
	mu   sync.RWMutex
}

var _ ports.ScoreRepository = (*InMemoryScoreRepository)(nil)

func NewInMemoryScoreRepository() *InMemoryScoreRepository {
	return &InMemoryScoreRepository{runs: make(map[core.RunID]*run.Run)}
}

func (s *InMemoryScoreRepository) SaveRun(ctx context.Context, r *run.Run) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *r
	s.runs[r.ID] = &stored
	return nil
}

func (s *InMemoryScoreRepository) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	copied := *r
	return &copied, nil
}

func (s *InMemoryScoreRepository) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]run.Summary, 0, len(s.runs))
	for _, r := range s.runs {
		sum := run.Summary{ID: r.ID, Status: r.Status, CreatedAt: r.CreatedAt}
		if r.Result != nil {
			sum.SetCount = len(r.Result.Sets)
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Len returns the number of stored runs
func (s *InMemoryScoreRepository) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// MockScoreRepository is a testify mock of ports.ScoreRepository
type MockScoreRepository struct {
	mock.Mock
}

var _ ports.ScoreRepository = (*MockScoreRepository)(nil)

func (m *MockScoreRepository) SaveRun(ctx context.Context, r *run.Run) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockScoreRepository) GetRun(ctx context.Context, id core.RunID) (*run.Run, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*run.Run), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScoreRepository) ListRuns(ctx context.Context, limit int) ([]run.Summary, error) {
	args := m.Called(ctx, limit)
	if s := args.Get(0); s != nil {
		return s.([]run.Summary), args.Error(1)
	}
	return nil, args.Error(1)
}
