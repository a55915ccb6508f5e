package service

import (
	"context"
	"errors"
	"fmt"
	"mastery-tracker/internal/api"
	"mastery-tracker/internal/config"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/mastery"
	"mastery-tracker/internal/storage"
	"mastery-tracker/internal/view"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseAwaitingSetup Phase = "awaiting-setup"
	PhaseLoading       Phase = "loading"
	PhaseReady         Phase = "ready"
	PhaseError         Phase = "error"
)

type BuildPhase string

const (
	BuildIdle     BuildPhase = "idle"
	BuildBuilding BuildPhase = "building"
)

var (
	ErrBuildInProgress = errors.New("database build already in progress")
	ErrEmptyAPIKey     = errors.New("API key must not be empty")
)

type BuildProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// dataset is everything derived from one successful load. It is replaced
// wholesale and never mutated after publication.
type dataset struct {
	achievements []domain.Achievement
	zoneRecords  []domain.Achievement
	// byID covers the catalog and the zone explorer records
	byID       map[int]domain.Achievement
	progress   domain.ProgressByID
	categories []domain.Category
	groups     []domain.Group
	enriched   []mastery.EnrichedAchievement
	hierarchy  []mastery.EnrichedGroup
	loadedAt   time.Time
}

func newDataset(achievements, zoneRecords []domain.Achievement, progress domain.ProgressByID, categories []domain.Category, groups []domain.Group) *dataset {
	byID := make(map[int]domain.Achievement, len(achievements)+len(zoneRecords))
	for _, a := range zoneRecords {
		byID[a.ID] = a
	}
	for _, a := range achievements {
		byID[a.ID] = a
	}
	enriched := mastery.Enrich(achievements, progress, mastery.BuildCategoryIndex(categories))
	return &dataset{
		achievements: achievements,
		zoneRecords:  zoneRecords,
		byID:         byID,
		progress:     progress,
		categories:   categories,
		groups:       groups,
		enriched:     enriched,
		hierarchy:    mastery.BuildHierarchy(enriched, categories, groups),
		loadedAt:     time.Now(),
	}
}

// withoutProgress keeps the catalog and drops account data.
func (d *dataset) withoutProgress() *dataset {
	return newDataset(d.achievements, d.zoneRecords, domain.ProgressByID{}, d.categories, d.groups)
}

type Store struct {
	catalog *CatalogService
	storage *storage.Adapter
	zones   []view.ZoneConfig
	zoneIDs []int
	seedKey string
	logger  zerolog.Logger

	mu             sync.RWMutex
	phase          Phase
	apiKey         string
	filters        domain.FilterSettings
	hidden         view.HiddenSet
	indexTimestamp int64
	indexBundled   bool
	data           *dataset
	loadError      string
	buildPhase     BuildPhase
	buildProgress  BuildProgress
	buildError     string

	// loadGen tags each load; only the newest one may publish results.
	loadGen atomic.Uint64
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewStore(catalog *CatalogService, storage *storage.Adapter, cfg *config.Config, logger zerolog.Logger) (*Store, error) {
	zones, err := view.LoadZones()
	if err != nil {
		return nil, err
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Store{
		baseCtx:    baseCtx,
		cancel:     cancel,
		catalog:    catalog,
		storage:    storage,
		zones:      zones,
		zoneIDs:    view.ZoneAchievementIDs(zones),
		seedKey:    cfg.SeedAPIKey,
		logger:     logger.With().Str("component", "store").Logger(),
		phase:      PhaseUninitialized,
		filters:    domain.DefaultFilterSettings(),
		hidden:     view.HiddenSet{},
		buildPhase: BuildIdle,
	}, nil
}

// Init restores persisted state and starts a load when both a key and an id
// index are available. Otherwise the store waits for the user to submit a key.
func (s *Store) Init(ctx context.Context) {
	if s.Restore(ctx) {
		s.startLoad()
	}
}

// Restore reads the persisted key, index timestamp, filters and hidden set
// and reports whether a load can start right away.
func (s *Store) Restore(ctx context.Context) bool {
	key := s.storage.APIKey(ctx)
	if key == "" && s.seedKey != "" {
		s.logger.Info().Msg("seeding API key from configuration")
		s.storage.SetAPIKey(ctx, s.seedKey)
		key = s.seedKey
	}
	idx, hasIndex := s.storage.IDIndex(ctx)
	filters := s.storage.Filters(ctx)
	hidden := s.storage.HiddenIDs(ctx)

	s.mu.Lock()
	s.apiKey = key
	s.filters = filters
	s.hidden = view.NewHiddenSet(hidden)
	s.indexTimestamp = idx.BuiltAt
	s.indexBundled = idx.Bundled
	canLoad := key != "" && hasIndex
	if canLoad {
		s.phase = PhaseLoading
	} else {
		s.phase = PhaseAwaitingSetup
	}
	s.mu.Unlock()

	s.logger.Info().
		Bool("has_key", key != "").
		Bool("has_index", hasIndex).
		Bool("bundled_index", idx.Bundled).
		Int("hidden_count", len(hidden)).
		Msg("store initialized")

	return canLoad
}

// Wait blocks until background loads finish.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels background loads and waits for them to return.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Store) startLoad() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.baseCtx, constants.LoadTimeout)
		defer cancel()
		_ = s.Refresh(ctx)
	}()
}

// SubmitKey stores key and starts loading in the background.
func (s *Store) SubmitKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyAPIKey
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	s.storage.SetAPIKey(ctx, key)

	s.mu.Lock()
	s.apiKey = key
	s.loadError = ""
	s.phase = PhaseLoading
	s.mu.Unlock()

	s.logger.Info().Msg("API key submitted")
	s.startLoad()
	return nil
}

// ClearKey forgets the key and the account progress loaded with it. The
// catalog stays.
func (s *Store) ClearKey() {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	s.storage.ClearAPIKey(ctx)

	// in-flight loads for the old key must not publish
	s.loadGen.Add(1)

	s.mu.Lock()
	s.apiKey = ""
	s.loadError = ""
	s.phase = PhaseAwaitingSetup
	if s.data != nil {
		s.data = s.data.withoutProgress()
	}
	s.mu.Unlock()

	s.logger.Info().Msg("API key cleared")
}

func (s *Store) SetCompletion(c view.Completion) error {
	return s.updateFilters(c.Apply)
}

func (s *Store) SetGoal(g view.Goal) error {
	return s.updateFilters(g.Apply)
}

func (s *Store) SetShowHidden(show bool) {
	_ = s.updateFilters(func(f *domain.FilterSettings) error {
		f.ShowHidden = show
		return nil
	})
}

func (s *Store) updateFilters(apply func(*domain.FilterSettings) error) error {
	s.mu.Lock()
	next := s.filters
	if err := apply(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.filters = next
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	s.storage.SaveFilters(ctx, next)
	return nil
}

// ToggleHidden flips id in the hidden set and returns its new membership.
func (s *Store) ToggleHidden(id int) bool {
	s.mu.Lock()
	next := make(view.HiddenSet, len(s.hidden)+1)
	for k := range s.hidden {
		next[k] = struct{}{}
	}
	hidden := !next.Has(id)
	if hidden {
		next[id] = struct{}{}
	} else {
		delete(next, id)
	}
	s.hidden = next
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()
	s.storage.SetHidden(ctx, id, hidden)
	return hidden
}

// Refresh loads account progress and the catalog. Failures are recorded in
// the load error slot and returned; previously loaded data stays in place.
func (s *Store) Refresh(ctx context.Context) error {
	gen := s.loadGen.Add(1)

	s.mu.Lock()
	key := s.apiKey
	if key == "" {
		s.phase = PhaseAwaitingSetup
		s.mu.Unlock()
		return domain.ErrNoAPIKey
	}
	s.phase = PhaseLoading
	s.mu.Unlock()

	log := s.logger.With().Uint64("load_gen", gen).Logger()
	log.Info().Msg("loading achievements")

	data, err := s.load(ctx, key)
	if err != nil {
		log.Error().Err(err).Msg("failed to load achievements")
		s.publishError(gen, err)
		return err
	}

	if !s.publish(gen, data) {
		log.Info().Msg("discarding results of superseded load")
		return nil
	}
	log.Info().Int("achievement_count", len(data.achievements)).Int("progress_count", len(data.progress)).Msg("achievements loaded")
	return nil
}

func (s *Store) load(ctx context.Context, key string) (*dataset, error) {
	valid, err := s.catalog.ValidateCredentials(ctx, key)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, domain.ErrInvalidCredentials
	}

	idx, ok := s.storage.IDIndex(ctx)
	if !ok {
		return nil, domain.ErrIndexMissing
	}

	var (
		progress     []domain.AccountAchievement
		categories   []domain.Category
		groups       []domain.Group
		achievements []domain.Achievement
		zoneRecords  []domain.Achievement
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		progress, err = s.catalog.FetchAccountProgress(gCtx, key)
		return err
	})
	g.Go(func() error {
		inner, innerCtx := errgroup.WithContext(gCtx)
		inner.Go(func() error {
			var err error
			categories, err = s.catalog.FetchCategories(innerCtx)
			return err
		})
		inner.Go(func() error {
			var err error
			groups, err = s.catalog.FetchGroups(innerCtx)
			return err
		})
		inner.Go(func() error {
			var err error
			achievements, err = s.catalog.FetchCatalogByIDs(innerCtx, idx.IDs)
			return err
		})
		inner.Go(func() error {
			var err error
			zoneRecords, err = s.catalog.FetchAchievements(innerCtx, s.zoneIDs)
			return err
		})
		return inner.Wait()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return newDataset(achievements, zoneRecords, domain.IndexProgress(progress), categories, groups), nil
}

func (s *Store) publish(gen uint64, data *dataset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen.Load() {
		return false
	}
	s.data = data
	s.loadError = ""
	s.phase = PhaseReady
	return true
}

func (s *Store) publishError(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen.Load() {
		return
	}
	s.loadError = ErrorMessage(err)
	s.phase = PhaseError
}

// BuildDatabase rebuilds the mastery id index. It runs independently of
// achievement loads and records failures in its own error slot. A successful
// build triggers a reload when a key is present.
func (s *Store) BuildDatabase(ctx context.Context) error {
	s.mu.Lock()
	if s.buildPhase == BuildBuilding {
		s.mu.Unlock()
		return ErrBuildInProgress
	}
	s.buildPhase = BuildBuilding
	s.buildProgress = BuildProgress{}
	s.buildError = ""
	s.mu.Unlock()

	_, err := s.catalog.BuildIDIndex(ctx, func(completed, total int) {
		s.mu.Lock()
		s.buildProgress = BuildProgress{Completed: completed, Total: total}
		s.mu.Unlock()
	})

	var idx domain.IDIndex
	if err == nil {
		idx, _ = s.storage.IDIndex(ctx)
	}

	s.mu.Lock()
	s.buildPhase = BuildIdle
	hasKey := s.apiKey != ""
	if err != nil {
		s.buildError = ErrorMessage(err)
	} else {
		s.indexTimestamp = idx.BuiltAt
		s.indexBundled = idx.Bundled
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if hasKey {
		s.startLoad()
	}
	return nil
}

type Snapshot struct {
	Phase          Phase                          `json:"phase"`
	HasAPIKey      bool                           `json:"hasApiKey"`
	Filters        domain.FilterSettings          `json:"filters"`
	HiddenIDs      []int                          `json:"hiddenIds"`
	IndexTimestamp int64                          `json:"indexTimestamp"`
	IndexBundled   bool                           `json:"indexBundled"`
	LoadError      string                         `json:"loadError,omitempty"`
	BuildPhase     BuildPhase                     `json:"buildPhase"`
	BuildProgress  BuildProgress                  `json:"buildProgress"`
	BuildError     string                         `json:"buildError,omitempty"`
	LoadedAt       *time.Time                     `json:"loadedAt,omitempty"`
	Points         mastery.PointSummary           `json:"points"`
	Regions        []view.RegionView              `json:"regions"`
	Groups         []view.GroupView               `json:"groups"`
	Zones          map[string][]view.ZoneExplorer `json:"zones"`
	RateLimit      api.RateLimitInfo              `json:"rateLimit"`
}

// Snapshot captures state under the read lock and derives the filtered views
// outside of it. Enrichment is reused from the last load; only filtering runs
// per call.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	filters := s.filters
	s.mu.RUnlock()
	return s.SnapshotWithFilters(filters)
}

// SnapshotWithFilters derives the views with filters in place of the saved
// settings. Nothing is persisted.
func (s *Store) SnapshotWithFilters(filters domain.FilterSettings) Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Phase:          s.phase,
		HasAPIKey:      s.apiKey != "",
		Filters:        filters,
		HiddenIDs:      s.hidden.IDs(),
		IndexTimestamp: s.indexTimestamp,
		IndexBundled:   s.indexBundled,
		LoadError:      s.loadError,
		BuildPhase:     s.buildPhase,
		BuildProgress:  s.buildProgress,
		BuildError:     s.buildError,
	}
	hidden := s.hidden
	data := s.data
	s.mu.RUnlock()

	if data == nil {
		data = newDataset(nil, nil, domain.ProgressByID{}, nil, nil)
	} else {
		loadedAt := data.loadedAt
		snap.LoadedAt = &loadedAt
	}

	opts := view.OptionsFromSettings(snap.Filters, nil)
	opts.Hidden = hidden

	snap.Points = mastery.SummarizePoints(data.achievements, data.progress)
	snap.Regions = view.BuildRegionViews(data.enriched, opts)
	snap.Groups = view.FilterHierarchy(data.hierarchy, opts)
	snap.Zones = view.BuildZoneToExplorerMap(s.zones, data.byID, data.progress)
	snap.RateLimit = s.catalog.RateLimit()
	return snap
}

func (s *Store) BuildHistory(ctx context.Context, limit int) []domain.IndexBuild {
	return s.storage.BuildHistory(ctx, limit)
}

func (s *Store) LatestBuild(ctx context.Context) (domain.IndexBuild, bool) {
	return s.storage.LatestBuild(ctx)
}

// ErrorMessage turns an error into the text shown to the user.
func ErrorMessage(err error) string {
	var fe *domain.FetchError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "Invalid API key or insufficient permissions. The key needs the account and progression permissions."
	case errors.Is(err, domain.ErrIndexMissing):
		return "The mastery achievement database has not been built yet. Run the database build first."
	case errors.Is(err, domain.ErrNoAPIKey):
		return "No API key configured."
	case errors.As(err, &fe):
		return fmt.Sprintf("Failed to fetch achievements: %s", fe.StatusText)
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out."
	default:
		return err.Error()
	}
}
