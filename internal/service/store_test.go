package service

import (
	"context"
	"errors"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/view"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, env *testEnv) *Store {
	t.Helper()
	store, err := NewStore(env.catalog, env.storage, env.cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func regionView(t *testing.T, snap Snapshot, region domain.Region) view.RegionView {
	t.Helper()
	for _, r := range snap.Regions {
		if r.Region == region {
			return r
		}
	}
	t.Fatalf("region %s missing from snapshot", region)
	return view.RegionView{}
}

// readyStore returns a store that has completed one load with seedFake data.
func readyStore(t *testing.T) (*Store, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	env.fake.set(seedFake)
	env.storage.SaveIDIndex(context.Background(), []int{1, 2, 4}, 1712345678901)
	env.cfg.SeedAPIKey = "seed-key"

	store := newTestStore(t, env)
	store.Init(context.Background())
	store.Wait()

	require.Equal(t, PhaseReady, store.Snapshot().Phase)
	return store, env
}

func TestStore_InitWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	env.storage.SaveIDIndex(context.Background(), []int{1}, 1)
	store := newTestStore(t, env)

	assert.Equal(t, PhaseUninitialized, store.Snapshot().Phase)
	store.Init(context.Background())
	store.Wait()

	snap := store.Snapshot()
	assert.Equal(t, PhaseAwaitingSetup, snap.Phase)
	assert.False(t, snap.HasAPIKey)
	assert.Equal(t, domain.DefaultFilterSettings(), snap.Filters)
	assert.Nil(t, snap.LoadedAt)
	assert.Zero(t, env.fake.count("/tokeninfo"))
}

func TestStore_InitWithoutIndex(t *testing.T) {
	env := newTestEnv(t)
	env.storage.SetAPIKey(context.Background(), "key")
	store := newTestStore(t, env)

	store.Init(context.Background())
	store.Wait()

	snap := store.Snapshot()
	assert.Equal(t, PhaseAwaitingSetup, snap.Phase)
	assert.True(t, snap.HasAPIKey)
}

func TestStore_InitAutoLoads(t *testing.T) {
	store, env := readyStore(t)

	snap := store.Snapshot()
	assert.True(t, snap.HasAPIKey)
	assert.Equal(t, "seed-key", env.storage.APIKey(context.Background()))
	assert.Equal(t, int64(1712345678901), snap.IndexTimestamp)
	assert.NotNil(t, snap.LoadedAt)
	assert.Empty(t, snap.LoadError)

	assert.Equal(t, 3, snap.Points.Total)
	assert.Equal(t, 1, snap.Points.Earned)

	tyria := regionView(t, snap, domain.RegionTyria)
	assert.Equal(t, 2, tyria.TotalCount)
	assert.Equal(t, 1, tyria.CompletedCount)
	assert.Equal(t, "1/49", tyria.Ratio())

	require.Len(t, snap.Groups, 1)
	assert.Equal(t, "story", snap.Groups[0].ID)
	assert.Equal(t, 3, snap.Groups[0].TotalCount)
}

func TestStore_ZoneExplorers(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(func(f *fakeGW2) {
		seedFake(f)
		f.achievements = append(f.achievements, domain.Achievement{
			ID:   135,
			Name: "Explorer: Kryta",
			Bits: []domain.Bit{
				{Type: "Text", Text: "Queensdale: Shaemoor"},
				{Type: "Text", Text: "Kessex Hills: Cereboth Canyon"},
				{Type: "Text", Text: "Queensdale: Shire of Beetletun"},
			},
		})
		f.progress = append(f.progress, domain.AccountAchievement{ID: 135, Bits: []int{0}})
	})
	env.storage.SaveIDIndex(context.Background(), []int{1, 2, 4}, 1)
	env.cfg.SeedAPIKey = "seed-key"
	store := newTestStore(t, env)
	store.Init(context.Background())
	store.Wait()

	snap := store.Snapshot()
	require.Equal(t, PhaseReady, snap.Phase)

	queensdale := snap.Zones["Queensdale"]
	require.Len(t, queensdale, 1)
	assert.Equal(t, 135, queensdale[0].AchievementID)
	assert.Equal(t, []int{0, 2}, queensdale[0].BitIndices)
	assert.Equal(t, 2, queensdale[0].TotalBits)
	assert.Equal(t, 1, queensdale[0].CompletedBits)
	assert.Equal(t, 50, queensdale[0].Percentage)

	kessex := snap.Zones["Kessex Hills"]
	require.Len(t, kessex, 1)
	assert.Equal(t, 1, kessex[0].TotalBits)
	assert.Zero(t, kessex[0].CompletedBits)

	// no bits mention Gendarran Fields
	assert.NotContains(t, snap.Zones, "Gendarran Fields")

	// zone records stay out of the mastery totals
	assert.Equal(t, 3, snap.Points.Total)
}

func TestStore_ZoneFetchFailureFailsLoad(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(seedFake)
	// the mastery catalog is cached, so only the zone fetch reaches the API
	_, err := env.catalog.FetchCatalogByIDs(context.Background(), []int{1, 2, 4})
	require.NoError(t, err)
	env.fake.set(func(f *fakeGW2) { f.catalogStatus = http.StatusBadGateway })

	env.storage.SaveIDIndex(context.Background(), []int{1, 2, 4}, 1)
	env.cfg.SeedAPIKey = "seed-key"
	store := newTestStore(t, env)
	store.Init(context.Background())
	store.Wait()

	snap := store.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "Failed to fetch achievements: Bad Gateway", snap.LoadError)
}

func TestStore_SubmitKey(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(seedFake)
	env.storage.SaveIDIndex(context.Background(), []int{1, 2, 4}, 1)
	store := newTestStore(t, env)
	store.Init(context.Background())

	assert.ErrorIs(t, store.SubmitKey("   "), ErrEmptyAPIKey)

	require.NoError(t, store.SubmitKey("  new-key  "))
	store.Wait()

	assert.Equal(t, "new-key", env.storage.APIKey(context.Background()))
	assert.Equal(t, PhaseReady, store.Snapshot().Phase)
}

func TestStore_InvalidKey(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set(func(f *fakeGW2) {
		seedFake(f)
		f.tokenStatus = http.StatusUnauthorized
	})
	env.storage.SaveIDIndex(context.Background(), []int{1, 2, 4}, 1)
	store := newTestStore(t, env)
	store.Init(context.Background())

	require.NoError(t, store.SubmitKey("bad"))
	store.Wait()

	snap := store.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, ErrorMessage(domain.ErrInvalidCredentials), snap.LoadError)
	assert.Zero(t, env.fake.count("/account/achievements"))
}

func TestStore_RefreshFailureKeepsData(t *testing.T) {
	store, env := readyStore(t)
	before := store.Snapshot()

	env.fake.set(func(f *fakeGW2) { f.accountStatus = http.StatusInternalServerError })
	err := store.Refresh(context.Background())
	require.Error(t, err)

	snap := store.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, "Failed to fetch achievements: Internal Server Error", snap.LoadError)
	assert.Equal(t, before.Points, snap.Points)
	assert.Equal(t, before.LoadedAt, snap.LoadedAt)

	env.fake.set(func(f *fakeGW2) { f.accountStatus = http.StatusOK })
	require.NoError(t, store.Refresh(context.Background()))
	snap = store.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Empty(t, snap.LoadError)
}

func TestStore_RefreshWithoutKey(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore(t, env)
	store.Init(context.Background())

	err := store.Refresh(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoAPIKey)
	assert.Equal(t, PhaseAwaitingSetup, store.Snapshot().Phase)
}

func TestStore_ClearKeyKeepsCatalog(t *testing.T) {
	store, env := readyStore(t)

	store.ClearKey()

	snap := store.Snapshot()
	assert.Equal(t, PhaseAwaitingSetup, snap.Phase)
	assert.False(t, snap.HasAPIKey)
	assert.Empty(t, env.storage.APIKey(context.Background()))
	assert.Equal(t, 3, snap.Points.Total)
	assert.Zero(t, snap.Points.Earned)
}

func TestStore_SupersededLoadIsDiscarded(t *testing.T) {
	store, _ := readyStore(t)

	stale := store.loadGen.Add(1)
	store.loadGen.Add(1)

	assert.False(t, store.publish(stale, newDataset(nil, nil, nil, nil, nil)))
	store.publishError(stale, errors.New("late failure"))

	snap := store.Snapshot()
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Empty(t, snap.LoadError)
	assert.Equal(t, 3, snap.Points.Total)
}

func TestStore_Filters(t *testing.T) {
	store, env := readyStore(t)

	require.NoError(t, store.SetCompletion(view.CompletionIncomplete))
	require.NoError(t, store.SetGoal(view.GoalAll))
	store.SetShowHidden(true)
	assert.Error(t, store.SetCompletion("sometimes"))
	assert.Error(t, store.SetGoal("most"))

	want := domain.FilterSettings{HideCompleted: true, RequiredOnly: false, ShowHidden: true}
	snap := store.Snapshot()
	assert.Equal(t, want, snap.Filters)
	assert.Equal(t, want, env.storage.Filters(context.Background()))

	tyria := regionView(t, snap, domain.RegionTyria)
	assert.Equal(t, "1/2", tyria.Ratio())
	assert.Equal(t, 1, tyria.DisplayedCount)
	assert.Equal(t, 2, tyria.TotalCount)
}

func TestStore_SnapshotWithFiltersDoesNotPersist(t *testing.T) {
	store, env := readyStore(t)
	ctx := context.Background()
	saved := env.storage.Filters(ctx)

	override := domain.FilterSettings{HideCompleted: true, RequiredOnly: false}
	snap := store.SnapshotWithFilters(override)

	assert.Equal(t, override, snap.Filters)
	tyria := regionView(t, snap, domain.RegionTyria)
	assert.Equal(t, "1/2", tyria.Ratio())
	assert.Equal(t, 1, tyria.DisplayedCount)

	assert.Equal(t, saved, env.storage.Filters(ctx))
	assert.Equal(t, saved, store.Snapshot().Filters)
	assert.Equal(t, "1/49", regionView(t, store.Snapshot(), domain.RegionTyria).Ratio())
}

func TestStore_InvalidFilterLeavesSettings(t *testing.T) {
	store, env := readyStore(t)
	before := store.Snapshot().Filters

	assert.Error(t, store.SetGoal("most"))
	assert.Equal(t, before, store.Snapshot().Filters)
	assert.Equal(t, before, env.storage.Filters(context.Background()))
}

func TestStore_ToggleHidden(t *testing.T) {
	store, env := readyStore(t)
	ctx := context.Background()

	assert.True(t, store.ToggleHidden(2))
	assert.Equal(t, []int{2}, store.Snapshot().HiddenIDs)
	assert.Equal(t, []int{2}, env.storage.HiddenIDs(ctx))

	tyria := regionView(t, store.Snapshot(), domain.RegionTyria)
	assert.Equal(t, 1, tyria.DisplayedCount)
	assert.Equal(t, 2, tyria.TotalCount)

	// completed achievements stay visible even when in the set
	assert.True(t, store.ToggleHidden(1))
	tyria = regionView(t, store.Snapshot(), domain.RegionTyria)
	assert.Equal(t, 1, tyria.DisplayedCount)

	assert.False(t, store.ToggleHidden(2))
	assert.Equal(t, []int{1}, env.storage.HiddenIDs(ctx))
}

func TestStore_RestoresPersistedState(t *testing.T) {
	store, env := readyStore(t)
	require.NoError(t, store.SetGoal(view.GoalAll))
	store.ToggleHidden(4)

	again := newTestStore(t, env)
	require.True(t, again.Restore(context.Background()))

	snap := again.Snapshot()
	assert.Equal(t, PhaseLoading, snap.Phase)
	assert.False(t, snap.Filters.RequiredOnly)
	assert.Equal(t, []int{4}, snap.HiddenIDs)
}

func TestStore_BuildDatabase(t *testing.T) {
	store, env := readyStore(t)
	env.fake.set(func(f *fakeGW2) {
		f.achievements = append(f.achievements, masteryRecord(6, domain.RegionSky))
	})

	require.NoError(t, store.BuildDatabase(context.Background()))
	store.Wait()

	snap := store.Snapshot()
	assert.Equal(t, BuildIdle, snap.BuildPhase)
	assert.Empty(t, snap.BuildError)
	assert.Equal(t, BuildProgress{Completed: 3, Total: 3}, snap.BuildProgress)
	assert.NotEqual(t, int64(1712345678901), snap.IndexTimestamp)
	assert.False(t, snap.IndexBundled)
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Equal(t, 4, snap.Points.Total)

	history := store.BuildHistory(context.Background(), 5)
	require.Len(t, history, 1)
	latest, ok := store.LatestBuild(context.Background())
	require.True(t, ok)
	assert.Equal(t, history[0].ID, latest.ID)
	assert.Equal(t, 4, latest.IDCount)
}

func TestStore_BuildFailureUsesOwnErrorSlot(t *testing.T) {
	store, env := readyStore(t)
	env.fake.set(func(f *fakeGW2) { f.catalogStatus = http.StatusBadGateway })

	err := store.BuildDatabase(context.Background())
	require.Error(t, err)

	snap := store.Snapshot()
	assert.Equal(t, BuildIdle, snap.BuildPhase)
	assert.Equal(t, "Failed to fetch achievements: Bad Gateway", snap.BuildError)
	assert.Empty(t, snap.LoadError)
	assert.Equal(t, PhaseReady, snap.Phase)
	assert.Equal(t, int64(1712345678901), snap.IndexTimestamp)
}

func TestStore_RejectsConcurrentBuild(t *testing.T) {
	env := newTestEnv(t)
	store := newTestStore(t, env)

	store.mu.Lock()
	store.buildPhase = BuildBuilding
	store.mu.Unlock()

	assert.ErrorIs(t, store.BuildDatabase(context.Background()), ErrBuildInProgress)
}

func TestErrorMessage(t *testing.T) {
	assert.Empty(t, ErrorMessage(nil))
	assert.Equal(t, "Failed to fetch achievements: Not Found",
		ErrorMessage(&domain.FetchError{Status: 404, StatusText: "Not Found"}))
	assert.Equal(t, "Request timed out.", ErrorMessage(context.DeadlineExceeded))
	assert.Contains(t, ErrorMessage(domain.ErrIndexMissing), "database build")
	assert.Equal(t, "something else", ErrorMessage(errors.New("something else")))
}
