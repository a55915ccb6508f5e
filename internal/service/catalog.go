package service

import (
	"context"
	"errors"
	"fmt"
	"mastery-tracker/internal/api"
	"mastery-tracker/internal/config"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/mastery"
	"mastery-tracker/internal/storage"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is told how many batches are done after each window.
type ProgressFunc func(completed, total int)

type CatalogService struct {
	gw2         *api.GW2Client
	storage     *storage.Adapter
	batchSize   int
	concurrency int
	logger      zerolog.Logger
	now         func() time.Time
}

func NewCatalogService(gw2 *api.GW2Client, storage *storage.Adapter, cfg *config.Config, logger zerolog.Logger) *CatalogService {
	return &CatalogService{
		gw2:         gw2,
		storage:     storage,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.BatchConcurrency,
		logger:      logger.With().Str("component", "catalog").Logger(),
		now:         time.Now,
	}
}

// ValidateCredentials reports whether key is accepted by the API. A rejected
// key is (false, nil); only transport failures return an error.
func (s *CatalogService) ValidateCredentials(ctx context.Context, key string) (bool, error) {
	info, err := s.gw2.GetTokenInfo(ctx, key)
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			s.logger.Info().Int("status", fe.Status).Msg("API key rejected")
			return false, nil
		}
		s.logger.Error().Err(err).Msg("failed to validate API key")
		return false, fmt.Errorf("failed to validate API key: %w", err)
	}

	s.logger.Debug().Str("key_name", info.Name).Strs("permissions", info.Permissions).Msg("API key validated")
	return true, nil
}

// BuildIDIndex fetches the whole catalog, keeps the achievements that award
// a mastery point, and persists both the id list and the records. Nothing is
// written unless every batch succeeds.
func (s *CatalogService) BuildIDIndex(ctx context.Context, onProgress ProgressFunc) ([]int, error) {
	buildID := s.storage.StartBuild(ctx)
	log := s.logger.With().Str("build_id", buildID).Logger()
	log.Info().Msg("building mastery id index")

	ids, records, err := s.fetchMasteryCatalog(ctx, onProgress)
	if err != nil {
		log.Error().Err(err).Msg("mastery id index build failed")
		s.storage.FinishBuild(context.WithoutCancel(ctx), buildID, 0, err)
		return nil, err
	}

	s.storage.SaveIDIndex(ctx, ids, s.now().UnixMilli())
	s.storage.SaveAchievements(ctx, records)
	s.storage.FinishBuild(ctx, buildID, len(ids), nil)

	log.Info().Int("mastery_count", len(ids)).Msg("mastery id index built")
	return ids, nil
}

func (s *CatalogService) fetchMasteryCatalog(ctx context.Context, onProgress ProgressFunc) ([]int, []domain.Achievement, error) {
	all, err := s.gw2.ListAchievementIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list achievement ids: %w", err)
	}

	s.logger.Debug().Int("achievement_count", len(all)).Msg("fetching full achievement catalog")

	achievements, err := FetchInBatches(ctx, all, s.batchSize, s.concurrency, s.gw2.GetAchievements, onProgress)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}

	var ids []int
	var records []domain.Achievement
	for _, a := range achievements {
		if !mastery.IsMastery(a) {
			continue
		}
		ids = append(ids, a.ID)
		records = append(records, a)
	}
	return ids, records, nil
}

// FetchCatalogByIDs returns the cached catalog when one exists, otherwise it
// fetches ids in batches and caches the result.
func (s *CatalogService) FetchCatalogByIDs(ctx context.Context, ids []int) ([]domain.Achievement, error) {
	if cached := s.storage.CachedAchievements(ctx); len(cached) > 0 {
		s.logger.Debug().Int("count", len(cached)).Msg("returning cached achievements")
		return cached, nil
	}

	achievements, err := FetchInBatches(ctx, ids, s.batchSize, s.concurrency, s.gw2.GetAchievements, nil)
	if err != nil {
		s.logger.Error().Err(err).Int("id_count", len(ids)).Msg("failed to fetch achievements")
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}

	s.storage.SaveAchievements(ctx, achievements)
	s.logger.Info().Int("count", len(achievements)).Msg("achievements fetched and cached")
	return achievements, nil
}

// FetchAchievements fetches ids in batches without touching the cache. It
// serves records outside the mastery index, such as zone explorers.
func (s *CatalogService) FetchAchievements(ctx context.Context, ids []int) ([]domain.Achievement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	achievements, err := FetchInBatches(ctx, ids, s.batchSize, s.concurrency, s.gw2.GetAchievements, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}
	return achievements, nil
}

// FetchAccountProgress maps a 403 to domain.ErrInvalidCredentials; other
// failed statuses come back as *domain.FetchError.
func (s *CatalogService) FetchAccountProgress(ctx context.Context, key string) ([]domain.AccountAchievement, error) {
	records, err := s.gw2.GetAccountAchievements(ctx, key)
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) && fe.Status == http.StatusForbidden {
			return nil, domain.ErrInvalidCredentials
		}
		s.logger.Error().Err(err).Msg("failed to fetch account progress")
		return nil, fmt.Errorf("failed to fetch account progress: %w", err)
	}

	s.logger.Debug().Int("count", len(records)).Msg("account progress fetched")
	return records, nil
}

func (s *CatalogService) FetchCategories(ctx context.Context) ([]domain.Category, error) {
	ids, err := s.gw2.ListCategoryIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list category ids: %w", err)
	}

	categories, err := FetchInBatches(ctx, ids, s.batchSize, s.concurrency, s.gw2.GetCategories, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return categories, nil
}

func (s *CatalogService) FetchGroups(ctx context.Context) ([]domain.Group, error) {
	groups, err := s.gw2.GetGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievement groups: %w", err)
	}
	return groups, nil
}

func (s *CatalogService) RateLimit() api.RateLimitInfo {
	return s.gw2.GetRateLimitInfo()
}

// FetchInBatches splits ids into batches of batchSize and runs them in
// windows of concurrency requests. Each window finishes before the next one
// starts, so no more than concurrency requests are in flight. Results keep
// the order of ids.
func FetchInBatches[T any](
	ctx context.Context,
	ids []int,
	batchSize, concurrency int,
	fetch func(context.Context, []int) ([]T, error),
	onProgress ProgressFunc,
) ([]T, error) {
	if batchSize <= 0 || concurrency <= 0 {
		return nil, fmt.Errorf("invalid batching: size %d, concurrency %d", batchSize, concurrency)
	}

	var batches [][]int
	for i := 0; i < len(ids); i += batchSize {
		end := min(i+batchSize, len(ids))
		batches = append(batches, ids[i:end])
	}

	out := make([]T, 0, len(ids))
	for start := 0; start < len(batches); start += concurrency {
		end := min(start+concurrency, len(batches))
		results := make([][]T, end-start)

		g, gCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			slot, batch := i-start, batches[i]
			g.Go(func() error {
				res, err := fetch(gCtx, batch)
				if err != nil {
					return err
				}
				results[slot] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, res := range results {
			out = append(out, res...)
		}
		if onProgress != nil {
			onProgress(end, len(batches))
		}
	}
	return out, nil
}
