package bot

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"

	"tg-poster/internal/config"
	"tg-poster/internal/logger"
)

// Initialize creates the Telegram bot client and verifies the token. The
// publication pipeline only sends; no update handler is attached here.
func Initialize(ctx context.Context, cfg *config.Config) (*telego.Bot, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	bot, err := telego.NewBot(cfg.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}

	botUser, err := bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	logger.Infof("Authorized on account %s", botUser.Username)

	return bot, nil
}
