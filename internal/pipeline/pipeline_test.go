package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
	"github.com/MikeSquared-Agency/Allot/internal/config"
	"github.com/MikeSquared-Agency/Allot/internal/hermes"
	"github.com/MikeSquared-Agency/Allot/internal/loader"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/store"
)

// MockStore implements store.Store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRun(ctx context.Context, run *store.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockStore) GetRun(ctx context.Context, id uuid.UUID) (*store.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *MockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*store.Run), args.Error(1)
}

func (m *MockStore) Close() error { return nil }

// MockHermes implements hermes.Client for testing
type MockHermes struct {
	mock.Mock
}

func (m *MockHermes) Publish(subject string, data interface{}) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func (m *MockHermes) Subscribe(subject string, handler func(string, []byte)) error {
	args := m.Called(subject, handler)
	return args.Error(0)
}

func (m *MockHermes) Close() {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(s store.Store, h hermes.Client, m *metrics.Recorder) *Pipeline {
	return New(birkhoff.NewAdapter(birkhoff.MatchingDecomposer{}, 0), s, h, m, quietLogger())
}

func tiedInput(t *testing.T) *loader.Input {
	t.Helper()
	in, err := loader.NewInput([]string{"Alice", "Bob"}, []string{"Apple", "Banana"}, [][]string{{"5", "1"}, {"5", "1"}})
	require.NoError(t, err)
	return in
}

func TestRun_TopK(t *testing.T) {
	s := &MockStore{}
	h := &MockHermes{}
	rec := metrics.New(false)

	var saved *store.Run
	s.On("CreateRun", mock.Anything, mock.AnythingOfType("*store.Run")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*store.Run) }).
		Return(nil)
	h.On("Publish", mock.MatchedBy(func(subject string) bool {
		return len(subject) > len("allot.run.") && subject[len(subject)-len(".completed"):] == ".completed"
	}), mock.AnythingOfType("hermes.RunCompletedEvent")).Return(nil)

	res, err := newPipeline(s, h, rec).Run(context.Background(), tiedInput(t), Options{Mode: config.ModeTopK, K: 5, Seed: 7})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1/2", "1/2"}, {"1/2", "1/2"}}, res.Allocation)
	assert.Equal(t, [][]int{{0, 1}, {0, 1}}, res.Preferences)
	require.Len(t, res.Terms, 2)
	require.Len(t, res.Selected, 2, "k larger than the decomposition returns every term")
	assert.Equal(t, 1, res.Selected[0].Choice.Rank)
	assert.InDelta(t, 0.5, res.Selected[0].Choice.Coefficient, 1e-9)
	assert.Equal(t, "Alice", res.Selected[0].Assignments[0].AgentName)
	assert.Equal(t, int64(7), res.Seed)
	require.NotNil(t, res.Fractional())
	assert.NoError(t, res.Fractional().CheckDoublyStochastic())

	require.NotNil(t, saved)
	assert.Equal(t, res.RunID, saved.ID)
	assert.Equal(t, store.StatusCompleted, saved.Status)
	assert.Equal(t, metrics.OutcomeCompleted, saved.Outcome)
	assert.Len(t, saved.Decomposition, 2)
	assert.Len(t, saved.Selected, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Runs().WithLabelValues(metrics.OutcomeCompleted)))
	s.AssertExpectations(t)
	h.AssertExpectations(t)
}

func TestRun_SampleIsReproducible(t *testing.T) {
	p := newPipeline(nil, nil, nil)
	in := tiedInput(t)

	first, err := p.Run(context.Background(), in, Options{Mode: config.ModeSample, Seed: 42})
	require.NoError(t, err)
	require.Len(t, first.Selected, 1)
	assert.Equal(t, 0, first.Selected[0].Choice.Rank)

	for i := 0; i < 5; i++ {
		again, err := p.Run(context.Background(), in, Options{Mode: config.ModeSample, Seed: 42})
		require.NoError(t, err)
		assert.Equal(t, first.Selected[0].Choice.Index, again.Selected[0].Choice.Index)
		assert.NotEqual(t, first.RunID, again.RunID)
	}
}

func TestRun_ZeroSeedIsReported(t *testing.T) {
	res, err := newPipeline(nil, nil, nil).Run(context.Background(), tiedInput(t), Options{Mode: config.ModeSample})
	require.NoError(t, err)
	assert.NotZero(t, res.Seed)
}

func TestRun_DecompositionInvariantFailure(t *testing.T) {
	s := &MockStore{}
	h := &MockHermes{}
	rec := metrics.New(false)

	var saved *store.Run
	s.On("CreateRun", mock.Anything, mock.AnythingOfType("*store.Run")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*store.Run) }).
		Return(nil)
	h.On("Publish", mock.AnythingOfType("string"), mock.AnythingOfType("hermes.RunFailedEvent")).Return(nil)

	short := birkhoff.DecomposerFunc(func(m [][]float64) ([]birkhoff.MatrixTerm, error) {
		return []birkhoff.MatrixTerm{{Coefficient: 0.5, Matrix: [][]float64{{1, 0}, {0, 1}}}}, nil
	})
	p := New(birkhoff.NewAdapter(short, 0), s, h, rec, quietLogger())

	_, err := p.Run(context.Background(), tiedInput(t), Options{Mode: config.ModeTopK, K: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, birkhoff.ErrDecompositionInvariantViolated)

	require.NotNil(t, saved)
	assert.Equal(t, store.StatusFailed, saved.Status)
	assert.Equal(t, metrics.OutcomeDecompositionInvariant, saved.Outcome)
	assert.NotEmpty(t, saved.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Runs().WithLabelValues(metrics.OutcomeDecompositionInvariant)))
	h.AssertExpectations(t)
}

func TestRun_SinkErrorsDoNotFailRun(t *testing.T) {
	s := &MockStore{}
	h := &MockHermes{}
	s.On("CreateRun", mock.Anything, mock.Anything).Return(errors.New("db down"))
	h.On("Publish", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	res, err := newPipeline(s, h, nil).Run(context.Background(), tiedInput(t), Options{Mode: config.ModeTopK, K: 1})
	require.NoError(t, err)
	assert.Len(t, res.Selected, 1)
}

func TestRun_UnknownMode(t *testing.T) {
	_, err := newPipeline(nil, nil, nil).Run(context.Background(), tiedInput(t), Options{Mode: "lottery"})
	assert.Error(t, err)
	assert.Equal(t, metrics.OutcomeOther, Classify(err))
}

func TestRunFiles(t *testing.T) {
	dir := t.TempDir()
	prefs := filepath.Join(dir, "prefs.csv")
	items := filepath.Join(dir, "goods.txt")
	require.NoError(t, os.WriteFile(prefs, []byte("Alice,3,2,1\nBob,1,3,2\nCara,2,1,3\n"), 0o644))
	require.NoError(t, os.WriteFile(items, []byte("Apple\nBanana\nCherry\n"), 0o644))

	res, err := newPipeline(nil, nil, nil).RunFiles(context.Background(), prefs, items, Options{Mode: config.ModeTopK, K: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "0", "0"}, {"0", "1", "0"}, {"0", "0", "1"}}, res.Allocation)
	require.Len(t, res.Selected, 1)
	assert.InDelta(t, 1.0, res.Selected[0].Choice.Coefficient, 1e-9)
	assert.Equal(t, "Cherry", res.Selected[0].Assignments[2].ItemName)
}

func TestRunFiles_RecordsLoadFailure(t *testing.T) {
	dir := t.TempDir()
	prefs := filepath.Join(dir, "prefs.csv")
	items := filepath.Join(dir, "goods.txt")
	require.NoError(t, os.WriteFile(prefs, []byte("Alice,3,x\nBob,1,2\n"), 0o644))
	require.NoError(t, os.WriteFile(items, []byte("Apple\nBanana\n"), 0o644))

	rec := metrics.New(false)
	_, err := newPipeline(nil, nil, rec).RunFiles(context.Background(), prefs, items, Options{})
	require.Error(t, err)
	assert.Equal(t, metrics.OutcomeInputFormat, Classify(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Runs().WithLabelValues(metrics.OutcomeInputFormat)))
}

func TestRunFiles_MissingFileIsInputFormat(t *testing.T) {
	rec := metrics.New(false)
	_, err := newPipeline(nil, nil, rec).RunFiles(context.Background(), filepath.Join(t.TempDir(), "prefs.csv"), "goods.txt", Options{})
	require.Error(t, err)
	assert.Equal(t, metrics.OutcomeInputFormat, Classify(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Runs().WithLabelValues(metrics.OutcomeInputFormat)))
}
