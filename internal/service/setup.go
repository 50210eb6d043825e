package service

import (
	"tg-poster/internal/config"
	"tg-poster/internal/logger"
	"tg-poster/internal/storage"
)

var (
	channelRepository *storage.ChannelRepository
	postRepository    *storage.PostRepository
	targetRepository  *storage.TargetRepository
	eventRepository   *storage.EventRepository
	globalConfig      *config.Config
)

// Initialize initializes the service with configuration
func Initialize(cfg *config.Config) {
	globalConfig = cfg
}

// InitRepositories initializes the repositories and migrates their tables
func InitRepositories() {
	if storage.DB == nil {
		logger.Warningf("Database is not initialized, repositories unavailable")
		return
	}

	channelRepository = storage.NewChannelRepository(storage.DB)
	if err := channelRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating channel tables: %v", err)
	}
	postRepository = storage.NewPostRepository(storage.DB)
	if err := postRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating post tables: %v", err)
	}
	targetRepository = storage.NewTargetRepository(storage.DB)
	if err := targetRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating delivery tables: %v", err)
	}
	eventRepository = storage.NewEventRepository(storage.DB)
	if err := eventRepository.MigrateTable(); err != nil {
		logger.Warningf("Error migrating event table: %v", err)
	}
}

// Repositories exposes the initialized repositories to the binary wiring.
func Repositories() (*storage.ChannelRepository, *storage.PostRepository, *storage.TargetRepository, *storage.EventRepository) {
	return channelRepository, postRepository, targetRepository, eventRepository
}
