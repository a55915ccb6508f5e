package fx

import (
	"mastery-tracker/internal/api"
	"mastery-tracker/internal/config"
	"mastery-tracker/internal/database"
	"mastery-tracker/internal/logger"
	"mastery-tracker/internal/repository"
	"mastery-tracker/internal/server"
	"mastery-tracker/internal/service"
	"mastery-tracker/internal/storage"

	"go.uber.org/fx"
)

// Core wires everything below the HTTP surface.
var Core = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewSettingsRepository),
	fx.Provide(repository.NewAchievementCacheRepository),
	fx.Provide(repository.NewHiddenRepository),
	fx.Provide(repository.NewIndexBuildRepository),
	fx.Provide(storage.NewAdapter),
	// api client
	fx.Provide(api.NewGW2Client),
	// svc
	fx.Provide(service.NewCatalogService),
	fx.Provide(service.NewStore),
)

var Module = fx.Options(
	Core,
	// server
	fx.Provide(server.NewTrackerServer),
)
