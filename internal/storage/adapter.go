// Package storage is the durable key/value layer behind the state store. Read
// and write failures are logged and replaced by in-memory fallbacks; callers
// never see a storage error.
package storage

import (
	"context"
	_ "embed"
	"encoding/json"
	"mastery-tracker/internal/constants"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/repository"
	"strconv"

	"github.com/rs/zerolog"
)

//go:embed defaults/mastery_ids.json
var bundledIDs []byte

type Adapter struct {
	settings *repository.SettingsRepository
	cache    *repository.AchievementCacheRepository
	hidden   *repository.HiddenRepository
	builds   *repository.IndexBuildRepository
	logger   zerolog.Logger
	defaults []int
}

func NewAdapter(
	settings *repository.SettingsRepository,
	cache *repository.AchievementCacheRepository,
	hidden *repository.HiddenRepository,
	builds *repository.IndexBuildRepository,
	logger zerolog.Logger,
) *Adapter {
	a := &Adapter{
		settings: settings,
		cache:    cache,
		hidden:   hidden,
		builds:   builds,
		logger:   logger.With().Str("component", "storage").Logger(),
	}
	if err := json.Unmarshal(bundledIDs, &a.defaults); err != nil {
		a.logger.Error().Err(err).Msg("failed to decode bundled mastery id list")
	}
	return a
}

// WithDefaults replaces the bundled fallback id list.
func (a *Adapter) WithDefaults(ids []int) *Adapter {
	a.defaults = ids
	return a
}

func (a *Adapter) APIKey(ctx context.Context) string {
	key, _, err := a.settings.Get(ctx, repository.SettingAPIKey)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read API key, treating as absent")
		return ""
	}
	return key
}

func (a *Adapter) SetAPIKey(ctx context.Context, key string) {
	if err := a.settings.Set(ctx, repository.SettingAPIKey, key); err != nil {
		a.logger.Error().Err(err).Msg("failed to persist API key")
	}
}

func (a *Adapter) ClearAPIKey(ctx context.Context) {
	if err := a.settings.Delete(ctx, repository.SettingAPIKey); err != nil {
		a.logger.Error().Err(err).Msg("failed to clear API key")
	}
}

// IDIndex returns the stored mastery id index, falling back to the bundled
// list. ok is false only when neither exists.
func (a *Adapter) IDIndex(ctx context.Context) (domain.IDIndex, bool) {
	var ids []int
	found, err := a.settings.GetJSON(ctx, repository.SettingIDIndex, &ids)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read mastery id index")
	}
	if found && len(ids) > 0 {
		idx := domain.IDIndex{IDs: ids}
		raw, ok, err := a.settings.Get(ctx, repository.SettingIndexBuilt)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to read index timestamp")
		}
		if ok {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				idx.BuiltAt = ms
			}
		}
		return idx, true
	}

	if len(a.defaults) == 0 {
		return domain.IDIndex{}, false
	}
	a.logger.Debug().Int("count", len(a.defaults)).Msg("using bundled mastery id index")
	return domain.IDIndex{
		IDs:     append([]int(nil), a.defaults...),
		BuiltAt: constants.BundledIndexTimestamp,
		Bundled: true,
	}, true
}

// SaveIDIndex writes the id list and its timestamp as one unit.
func (a *Adapter) SaveIDIndex(ctx context.Context, ids []int, builtAt int64) {
	raw, err := json.Marshal(ids)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to encode mastery id index")
		return
	}
	err = a.settings.SetMany(ctx, map[string]string{
		repository.SettingIDIndex:    string(raw),
		repository.SettingIndexBuilt: strconv.FormatInt(builtAt, 10),
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to persist mastery id index")
	}
}

func (a *Adapter) CachedAchievements(ctx context.Context) []domain.Achievement {
	achievements, err := a.cache.GetAll(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read achievement cache, treating as empty")
		return nil
	}
	return achievements
}

func (a *Adapter) SaveAchievements(ctx context.Context, achievements []domain.Achievement) {
	if err := a.cache.ReplaceAll(ctx, achievements); err != nil {
		a.logger.Error().Err(err).Int("count", len(achievements)).Msg("failed to persist achievement cache")
	}
}

func (a *Adapter) Filters(ctx context.Context) domain.FilterSettings {
	settings := domain.DefaultFilterSettings()
	if _, err := a.settings.GetJSON(ctx, repository.SettingFilters, &settings); err != nil {
		a.logger.Warn().Err(err).Msg("failed to read filter settings, using defaults")
		return domain.DefaultFilterSettings()
	}
	return settings
}

func (a *Adapter) SaveFilters(ctx context.Context, settings domain.FilterSettings) {
	if err := a.settings.SetJSON(ctx, repository.SettingFilters, settings); err != nil {
		a.logger.Error().Err(err).Msg("failed to persist filter settings")
	}
}

func (a *Adapter) HiddenIDs(ctx context.Context) []int {
	ids, err := a.hidden.List(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read hidden achievements, treating as empty")
		return nil
	}
	return ids
}

func (a *Adapter) SetHidden(ctx context.Context, id int, hidden bool) {
	var err error
	if hidden {
		err = a.hidden.Add(ctx, id)
	} else {
		err = a.hidden.Remove(ctx, id)
	}
	if err != nil {
		a.logger.Error().Err(err).Int("achievement_id", id).Bool("hidden", hidden).Msg("failed to persist hidden state")
	}
}

// StartBuild records a build in the history table. An empty id means the
// history could not be written; the build itself still proceeds.
func (a *Adapter) StartBuild(ctx context.Context) string {
	id, err := a.builds.Start(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to record index build start")
		return ""
	}
	return id
}

func (a *Adapter) FinishBuild(ctx context.Context, id string, idCount int, buildErr error) {
	if id == "" {
		return
	}
	if err := a.builds.Finish(ctx, id, idCount, buildErr); err != nil {
		a.logger.Warn().Err(err).Str("build_id", id).Msg("failed to record index build result")
	}
}

func (a *Adapter) BuildHistory(ctx context.Context, limit int) []domain.IndexBuild {
	builds, err := a.builds.List(ctx, limit)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read index build history")
		return nil
	}
	return builds
}

// LatestBuild returns the most recent index build, if any.
func (a *Adapter) LatestBuild(ctx context.Context) (domain.IndexBuild, bool) {
	b, err := a.builds.Latest(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read latest index build")
		return domain.IndexBuild{}, false
	}
	if b == nil {
		return domain.IndexBuild{}, false
	}
	return *b, true
}
