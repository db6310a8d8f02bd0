package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/content-scheduler/internal/domain"
	"github.com/jonesrussell/content-scheduler/internal/logger"
	"github.com/jonesrussell/content-scheduler/internal/metrics"
	"github.com/jonesrussell/content-scheduler/internal/refdata"
	"github.com/jonesrussell/content-scheduler/internal/telemetry"
)

// telemetry providers register on the default Prometheus registry, so
// tests share one.
var (
	telemetryOnce   sync.Once
	sharedTelemetry *telemetry.Provider
)

func testTelemetry() *telemetry.Provider {
	telemetryOnce.Do(func() {
		sharedTelemetry = telemetry.NewProvider()
	})
	return sharedTelemetry
}

// fakeProgramStore mimics the conditional-update semantics of the
// Postgres repository in memory.
type fakeProgramStore struct {
	programs map[uuid.UUID]*domain.Program

	itemsToday int64
	costToday  float64
}

func newFakeProgramStore() *fakeProgramStore {
	return &fakeProgramStore{programs: make(map[uuid.UUID]*domain.Program)}
}

func (s *fakeProgramStore) Get(_ context.Context, id uuid.UUID) (*domain.Program, error) {
	p, ok := s.programs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProgramStore) FindReady(_ context.Context, now time.Time) ([]domain.Program, error) {
	var ready []domain.Program
	for _, p := range s.programs {
		if p.IsReady(now) && p.NextRunAt != nil {
			ready = append(ready, *p)
		}
	}
	return ready, nil
}

func (s *fakeProgramStore) ClaimRun(_ context.Context, id uuid.UUID, now time.Time) (*domain.Program, error) {
	p, ok := s.programs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	claimable := (p.Status == domain.ProgramStatusActive || p.Status == domain.ProgramStatusScheduled) &&
		p.NextRunAt != nil && !p.NextRunAt.After(now) &&
		(p.EndAt == nil || p.EndAt.After(now))
	if !claimable {
		return nil, domain.ErrNotFound
	}
	p.NextRunAt = nil
	p.Status = domain.ProgramStatusActive
	cp := *p
	return &cp, nil
}

func (s *fakeProgramStore) Update(_ context.Context, p *domain.Program) error {
	if _, ok := s.programs[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	s.programs[p.ID] = &cp
	return nil
}

func (s *fakeProgramStore) CountItemsBetween(_ context.Context, _ uuid.UUID, _, _ time.Time) (int64, error) {
	return s.itemsToday, nil
}

func (s *fakeProgramStore) SumCostBetween(_ context.Context, _ uuid.UUID, _, _ time.Time) (float64, error) {
	return s.costToday, nil
}

type fakeRunStore struct {
	runs      map[uuid.UUID]*domain.ProgramRun
	running   int64
	createErr error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{runs: make(map[uuid.UUID]*domain.ProgramRun)}
}

func (s *fakeRunStore) Create(_ context.Context, run *domain.ProgramRun) error {
	if s.createErr != nil {
		return s.createErr
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) Get(_ context.Context, id uuid.UUID) (*domain.ProgramRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) IncrementGenerated(_ context.Context, id uuid.UUID, cost float64) (*domain.ProgramRun, error) {
	run, ok := s.runs[id]
	if !ok || run.Status != domain.RunStatusRunning || run.ItemsGenerated+run.ItemsFailed >= run.ItemsPlanned {
		return nil, domain.ErrNotFound
	}
	run.ItemsGenerated++
	run.Cost += cost
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) IncrementFailed(_ context.Context, id uuid.UUID) (*domain.ProgramRun, error) {
	run, ok := s.runs[id]
	if !ok || run.Status != domain.RunStatusRunning || run.ItemsGenerated+run.ItemsFailed >= run.ItemsPlanned {
		return nil, domain.ErrNotFound
	}
	run.ItemsFailed++
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) Finalize(_ context.Context, run *domain.ProgramRun) error {
	if _, ok := s.runs[run.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) CountRunning(_ context.Context, _ uuid.UUID) (int64, error) {
	return s.running, nil
}

func (s *fakeRunStore) FindStale(_ context.Context, _ time.Duration) ([]domain.ProgramRun, error) {
	var stale []domain.ProgramRun
	for _, run := range s.runs {
		if run.Status == domain.RunStatusRunning {
			stale = append(stale, *run)
		}
	}
	return stale, nil
}

type fakeItemStore struct {
	items    map[uuid.UUID]*domain.ProgramItem
	order    []uuid.UUID
	batchErr error
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: make(map[uuid.UUID]*domain.ProgramItem)}
}

func (s *fakeItemStore) CreateBatch(_ context.Context, items []domain.ProgramItem) error {
	if s.batchErr != nil {
		return s.batchErr
	}
	for i := range items {
		cp := items[i]
		s.items[cp.ID] = &cp
		s.order = append(s.order, cp.ID)
	}
	return nil
}

func (s *fakeItemStore) Get(_ context.Context, id uuid.UUID) (*domain.ProgramItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *fakeItemStore) Update(_ context.Context, item *domain.ProgramItem) error {
	if _, ok := s.items[item.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *item
	s.items[item.ID] = &cp
	return nil
}

func (s *fakeItemStore) ForRun(_ context.Context, runID uuid.UUID) ([]domain.ProgramItem, error) {
	var out []domain.ProgramItem
	for _, id := range s.order {
		if s.items[id].RunID == runID {
			out = append(out, *s.items[id])
		}
	}
	return out, nil
}

func testRefdata() *refdata.Static {
	return &refdata.Static{
		AllCountries: []refdata.Country{
			{ID: 1, Code: "FR", PrimaryLanguageID: 10},
			{ID: 2, Code: "DE", PrimaryLanguageID: 11},
			{ID: 3, Code: "ES", PrimaryLanguageID: 12},
		},
		AllLanguages: []refdata.Language{
			{ID: 10, Code: "fr"},
			{ID: 11, Code: "de"},
		},
		AllThemes: []refdata.Theme{
			{ID: 100, Name: "finance"},
			{ID: 101, Name: "travel"},
		},
	}
}

type fixture struct {
	runner   *Runner
	programs *fakeProgramStore
	runs     *fakeRunStore
	items    *fakeItemStore
	tracker  *metrics.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	programs := newFakeProgramStore()
	runs := newFakeRunStore()
	items := newFakeItemStore()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.NewNopLogger()
	tracker := metrics.NewTracker(client, log)
	return &fixture{
		runner:   New(programs, runs, items, testRefdata(), tracker, testTelemetry(), log),
		programs: programs,
		runs:     runs,
		items:    items,
		tracker:  tracker,
	}
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func dailyProgram(t *testing.T, value int) *domain.Program {
	t.Helper()
	p, err := domain.NewProgram("daily articles", []string{"article"}, domain.QuantityTotal, value,
		domain.Recurrence{Type: domain.RecurrenceDaily, TimeOfDay: "08:00"})
	require.NoError(t, err)
	return p
}

func TestStartRun_ExpandsMatrix(t *testing.T) {
	f := newFixture(t)
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p, err := domain.NewProgram("matrix", []string{"article"}, domain.QuantityPerCountryLanguage, 2,
		domain.Recurrence{Type: domain.RecurrenceDaily, TimeOfDay: "08:00"})
	require.NoError(t, err)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	f.programs.programs[p.ID] = p

	run, err := f.runner.StartRun(context.Background(), p.ID, now)
	require.NoError(t, err)

	// 2 per pair x 3 countries x 2 languages x 1 content type
	assert.Equal(t, 12, run.ItemsPlanned)

	items, err := f.items.ForRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, items, 12)
	for _, item := range items {
		assert.Equal(t, domain.ItemStatusPending, item.Status)
		assert.Equal(t, domain.GenerationArticle, item.GenerationType)
		assert.NotNil(t, item.ThemeID)
	}

	// program is claimed: next_run_at cleared until the run finalizes
	stored, err := f.programs.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NextRunAt)
}

func TestStartRun_ClaimLost(t *testing.T) {
	f := newFixture(t)
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p := dailyProgram(t, 5)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	f.programs.programs[p.ID] = p

	_, err := f.runner.StartRun(context.Background(), p.ID, now)
	require.NoError(t, err)

	// second claim for the same occurrence loses
	_, err = f.runner.StartRun(context.Background(), p.ID, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStartRun_EmptyMatrixMarksError(t *testing.T) {
	f := newFixture(t)
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p := dailyProgram(t, 5)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	p.CountryIDs = pq.Int64Array{999} // resolves to nothing
	f.programs.programs[p.ID] = p

	_, err := f.runner.StartRun(context.Background(), p.ID, now)
	require.ErrorIs(t, err, domain.ErrInvalidProgram)

	stored, err := f.programs.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusError, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
}

func TestDailyProgramLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := dailyProgram(t, 5)
	f.programs.programs[p.ID] = p

	// Activation at 10:00 schedules the next 08:00 occurrence.
	activated, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.runner.Activate(ctx, activated, mustParse(t, "2024-01-01T10:00:00Z")))

	stored, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusActive, stored.Status)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, mustParse(t, "2024-01-02T08:00:00Z"), *stored.NextRunAt)

	// Not ready before the occurrence.
	ready, err := f.runner.FindReadyPrograms(ctx, mustParse(t, "2024-01-02T07:59:00Z"))
	require.NoError(t, err)
	assert.Empty(t, ready)

	// Due at 08:00; the tick claims and expands.
	tick := mustParse(t, "2024-01-02T08:00:00Z")
	ready, err = f.runner.FindReadyPrograms(ctx, tick)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	run, err := f.runner.StartRun(ctx, ready[0].ID, tick)
	require.NoError(t, err)
	assert.Equal(t, 5, run.ItemsPlanned)

	// 4 items complete, 1 fails; the last resolution finalizes the run.
	items, err := f.items.ForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 5)

	done := mustParse(t, "2024-01-02T08:30:00Z")
	for i := 0; i < 4; i++ {
		ref := domain.ContentRef{Kind: domain.ContentKindArticle, ID: uuid.NewString()}
		require.NoError(t, f.runner.CompleteItem(ctx, items[i].ID, ref, 0.05, done))
	}
	require.NoError(t, f.runner.FailItem(ctx, items[4].ID, "generation timeout", done))

	final, err := f.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, final.Status)
	assert.Equal(t, 4, final.ItemsGenerated)
	assert.Equal(t, 1, final.ItemsFailed)
	require.NotNil(t, final.Summary)
	assert.InDelta(t, 80.0, final.Summary.SuccessRate, 0.001)
	assert.InDelta(t, 0.20, final.Summary.TotalCost, 0.0001)
	assert.Equal(t, 4, final.Summary.ByGenerationType["article"])

	// Program advanced to the next occurrence with updated totals.
	stored, err = f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusActive, stored.Status)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, mustParse(t, "2024-01-03T08:00:00Z"), *stored.NextRunAt)
	assert.Equal(t, int64(4), stored.TotalGenerated)
	assert.Equal(t, int64(1), stored.TotalErrors)
	assert.Equal(t, int64(1), stored.RunCount)
	require.NotNil(t, stored.LastRunAt)
}

func TestOneShotProgramCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := domain.NewProgram("one shot", []string{"article"}, domain.QuantityTotal, 1,
		domain.Recurrence{Type: domain.RecurrenceOnce})
	require.NoError(t, err)
	f.programs.programs[p.ID] = p

	now := mustParse(t, "2024-01-01T10:00:00Z")
	activated, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, f.runner.Activate(ctx, activated, now))

	run, err := f.runner.StartRun(ctx, p.ID, now)
	require.NoError(t, err)

	items, err := f.items.ForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	ref := domain.ContentRef{Kind: domain.ContentKindArticle, ID: uuid.NewString()}
	require.NoError(t, f.runner.CompleteItem(ctx, items[0].ID, ref, 0.02, now.Add(time.Minute)))

	stored, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextRunAt)
}

func TestAllItemsFailedFinalizesAsFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p := dailyProgram(t, 2)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	f.programs.programs[p.ID] = p

	run, err := f.runner.StartRun(ctx, p.ID, now)
	require.NoError(t, err)

	items, err := f.items.ForRun(ctx, run.ID)
	require.NoError(t, err)
	for i := range items {
		require.NoError(t, f.runner.FailItem(ctx, items[i].ID, "provider unavailable", now.Add(time.Minute)))
	}

	final, err := f.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)

	// The program stays schedulable after a failed run.
	stored, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusActive, stored.Status)
	require.NotNil(t, stored.NextRunAt)
}

func TestCanRunToday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := mustParse(t, "2024-01-02T08:00:00Z")

	t.Run("no limits always allows", func(t *testing.T) {
		ok, err := f.runner.CanRunToday(ctx, dailyProgram(t, 5), now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent limit defers", func(t *testing.T) {
		p := dailyProgram(t, 5)
		limit := int64(1)
		p.ConcurrentJobsLimit = &limit
		f.runs.running = 1

		ok, err := f.runner.CanRunToday(ctx, p, now)
		require.NoError(t, err)
		assert.False(t, ok)

		f.runs.running = 0
	})

	t.Run("daily generation limit defers", func(t *testing.T) {
		p := dailyProgram(t, 5)
		limit := int64(10)
		p.DailyGenerationLimit = &limit
		f.programs.itemsToday = 10

		ok, err := f.runner.CanRunToday(ctx, p, now)
		require.NoError(t, err)
		assert.False(t, ok)

		f.programs.itemsToday = 0
	})

	t.Run("daily budget limit defers", func(t *testing.T) {
		p := dailyProgram(t, 5)
		budget := 1.50
		p.DailyBudgetLimit = &budget
		f.programs.costToday = 1.50

		ok, err := f.runner.CanRunToday(ctx, p, now)
		require.NoError(t, err)
		assert.False(t, ok)

		f.programs.costToday = 0
	})
}

func TestCancelRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p := dailyProgram(t, 3)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	f.programs.programs[p.ID] = p

	run, err := f.runner.StartRun(ctx, p.ID, now)
	require.NoError(t, err)

	require.NoError(t, f.runner.CancelRun(ctx, run, now.Add(time.Minute)))
	assert.Equal(t, domain.RunStatusCancelled, run.Status)

	t.Run("cancelling twice is rejected", func(t *testing.T) {
		err := f.runner.CancelRun(ctx, run, now.Add(2*time.Minute))
		assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	})

	// Cancellation releases the run's claim: the program is rescheduled
	// for its next occurrence and later ticks still see it.
	stored, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusActive, stored.Status)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, mustParse(t, "2024-01-03T08:00:00Z"), *stored.NextRunAt)

	ready, err := f.runner.FindReadyPrograms(ctx, mustParse(t, "2024-01-03T08:00:00Z"))
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestStartRun_PersistFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	now := mustParse(t, "2024-01-02T08:00:00Z")

	t.Run("run row insert fails", func(t *testing.T) {
		f := newFixture(t)
		p := dailyProgram(t, 5)
		p.Status = domain.ProgramStatusActive
		p.NextRunAt = &now
		f.programs.programs[p.ID] = p
		f.runs.createErr = errors.New("connection reset")

		_, err := f.runner.StartRun(ctx, p.ID, now)
		require.Error(t, err)

		// the claim is not silently held: the program surfaces the
		// failure and Activate recovers it
		stored, err := f.programs.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ProgramStatusError, stored.Status)
		require.NotNil(t, stored.ErrorMessage)

		f.runs.createErr = nil
		require.NoError(t, f.runner.Activate(ctx, stored, now))
		ready, err := f.runner.FindReadyPrograms(ctx, mustParse(t, "2024-01-03T08:00:00Z"))
		require.NoError(t, err)
		assert.Len(t, ready, 1)
	})

	t.Run("item batch insert fails", func(t *testing.T) {
		f := newFixture(t)
		p := dailyProgram(t, 5)
		p.Status = domain.ProgramStatusActive
		p.NextRunAt = &now
		f.programs.programs[p.ID] = p
		f.items.batchErr = errors.New("deadlock detected")

		_, err := f.runner.StartRun(ctx, p.ID, now)
		require.Error(t, err)

		stored, err := f.programs.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ProgramStatusError, stored.Status)

		// the half-created run is failed rather than left running
		for _, run := range f.runs.runs {
			assert.Equal(t, domain.RunStatusFailed, run.Status)
			require.NotNil(t, run.ErrorMessage)
		}
	})
}

func TestItemResolutionTracksDailyCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p := dailyProgram(t, 2)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	f.programs.programs[p.ID] = p

	run, err := f.runner.StartRun(ctx, p.ID, now)
	require.NoError(t, err)
	items, err := f.items.ForRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	ref := domain.ContentRef{Kind: domain.ContentKindArticle, ID: uuid.NewString()}
	require.NoError(t, f.runner.CompleteItem(ctx, items[0].ID, ref, 0.05, now))
	require.NoError(t, f.runner.FailItem(ctx, items[1].ID, "provider unavailable", now))

	stats, err := f.tracker.GetStats(ctx, nil, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalGenerated)
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.InDelta(t, 0.05, stats.TotalCost, 0.0001)
}

func TestActivate_ExhaustedCronCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// February 30th never exists, so the expression has no future fire
	p, err := domain.NewProgram("leap", []string{"article"}, domain.QuantityTotal, 1,
		domain.Recurrence{Type: domain.RecurrenceCron, CronExpr: "0 0 30 2 *"})
	require.NoError(t, err)
	f.programs.programs[p.ID] = p

	require.NoError(t, f.runner.Activate(ctx, p, mustParse(t, "2024-01-01T10:00:00Z")))

	stored, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextRunAt)
}

func TestRecoverStaleRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := mustParse(t, "2024-01-02T08:00:00Z")

	p := dailyProgram(t, 2)
	p.Status = domain.ProgramStatusActive
	p.NextRunAt = &now
	f.programs.programs[p.ID] = p

	run, err := f.runner.StartRun(ctx, p.ID, now)
	require.NoError(t, err)

	later := now.Add(3 * time.Hour)
	recovered, err := f.runner.RecoverStaleRuns(ctx, 2*time.Hour, later)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	final, err := f.runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)

	// Recovery reschedules the program for its next occurrence.
	stored, err := f.programs.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProgramStatusActive, stored.Status)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, mustParse(t, "2024-01-03T08:00:00Z"), *stored.NextRunAt)
}

func TestExpandItems_QuantityModes(t *testing.T) {
	now := mustParse(t, "2024-01-02T08:00:00Z")
	ref := testRefdata()
	m := &matrix{Countries: ref.AllCountries, Languages: ref.AllLanguages, Themes: ref.AllThemes}

	testCases := []struct {
		name      string
		mode      domain.QuantityMode
		value     int
		wantCount int
	}{
		{name: "total is exact", mode: domain.QuantityTotal, value: 5, wantCount: 5},
		{name: "per country multiplies countries", mode: domain.QuantityPerCountry, value: 2, wantCount: 6},
		{name: "per language multiplies languages", mode: domain.QuantityPerLanguage, value: 2, wantCount: 4},
		{name: "per pair multiplies both", mode: domain.QuantityPerCountryLanguage, value: 2, wantCount: 12},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := domain.NewProgram("modes", []string{"article"}, tc.mode, tc.value,
				domain.Recurrence{Type: domain.RecurrenceDaily, TimeOfDay: "08:00"})
			require.NoError(t, err)

			run := domain.NewProgramRun(p.ID, p.EstimateItemCount(len(m.Countries), len(m.Languages)), now)
			items := expandItems(p, run, m, now)

			assert.Len(t, items, tc.wantCount)
			assert.Equal(t, tc.wantCount, run.ItemsPlanned)
		})
	}

	t.Run("per country uses the primary language", func(t *testing.T) {
		p, err := domain.NewProgram("primary", []string{"article"}, domain.QuantityPerCountry, 1,
			domain.Recurrence{Type: domain.RecurrenceDaily, TimeOfDay: "08:00"})
		require.NoError(t, err)

		run := domain.NewProgramRun(p.ID, p.EstimateItemCount(len(m.Countries), len(m.Languages)), now)
		items := expandItems(p, run, m, now)

		require.Len(t, items, 3)
		byCountry := make(map[int64]int64)
		for _, item := range items {
			byCountry[item.CountryID] = item.LanguageID
		}
		assert.Equal(t, int64(10), byCountry[1])
		assert.Equal(t, int64(11), byCountry[2])
		assert.Equal(t, int64(12), byCountry[3])
	})
}
