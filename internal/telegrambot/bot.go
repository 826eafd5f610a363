package telegrambot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/core/embeddings"
	"github.com/lueurxax/trend-digest-bot/internal/core/llm"
	"github.com/lueurxax/trend-digest-bot/internal/ingest"
	"github.com/lueurxax/trend-digest-bot/internal/platform/schedule"
	"github.com/lueurxax/trend-digest-bot/internal/platform/worker"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
)

const (
	updateTimeout = 60
	submitTimeout = 30 * time.Second
	fileTimeout   = time.Minute
)

// API is the part of tgbotapi.BotAPI the bot uses besides sending.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Replier sends rendered text back to chats.
type Replier interface {
	Send(ctx context.Context, chatID int64, kind string, parts []string) error
	SendText(ctx context.Context, chatID int64, text string) error
}

// Repository is the storage used by bot commands.
type Repository interface {
	Categories(ctx context.Context) ([]string, error)
	Subscribe(ctx context.Context, userID int64, category string) (bool, error)
	Unsubscribe(ctx context.Context, userID int64, category string) (bool, error)
	GetSubscription(ctx context.Context, userID int64) (domain.Subscription, error)
	ListSources(ctx context.Context, sourceType string) ([]domain.Source, error)
	SourceExists(ctx context.Context, url string) (bool, error)
	AddSource(ctx context.Context, url, sourceType, category string) (domain.Source, error)
	DeleteSource(ctx context.Context, id string) error
}

var _ Repository = (*db.DB)(nil)

// Dispatcher queues analysis requests.
type Dispatcher interface {
	Submit(ctx context.Context, chatID int64, req analysis.Request) (string, error)
}

// Ingester runs one ingestion pass for /parse.
type Ingester interface {
	Run(ctx context.Context) (ingest.Report, error)
}

// LLMStatus reports provider health and token spend for /llm.
type LLMStatus interface {
	GetProviderStatuses() []llm.ProviderStatus
	BudgetStatus() llm.BudgetStatus
	TaskModelOverrides() map[llm.TaskType]string
}

// EmbeddingStatus lists the embedding providers for /llm.
type EmbeddingStatus interface {
	ProviderNames() []embeddings.ProviderName
}

var (
	_ LLMStatus       = (*llm.Registry)(nil)
	_ EmbeddingStatus = (*embeddings.Registry)(nil)
)

// Options configures the bot.
type Options struct {
	AdminIDs   []int64
	Location   *time.Location
	HTTPClient *http.Client
	LLM        LLMStatus
	Embeddings EmbeddingStatus
}

type Bot struct {
	api        API
	replier    Replier
	repo       Repository
	dispatcher Dispatcher
	ingester   Ingester
	llm        LLMStatus
	embeddings EmbeddingStatus
	admins     map[int64]bool
	loc        *time.Location
	httpClient *http.Client
	now        func() time.Time
	logger     *zerolog.Logger

	parsing atomic.Bool
	wg      sync.WaitGroup
}

func New(api API, replier Replier, repo Repository, dispatcher Dispatcher, ingester Ingester, opts Options, logger *zerolog.Logger) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if opts.Location == nil {
		opts.Location = time.UTC
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: fileTimeout}
	}

	admins := make(map[int64]bool, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = true
	}

	return &Bot{
		api:        api,
		replier:    replier,
		repo:       repo,
		dispatcher: dispatcher,
		ingester:   ingester,
		llm:        opts.LLM,
		embeddings: opts.Embeddings,
		admins:     admins,
		loc:        opts.Location,
		httpClient: opts.HTTPClient,
		now:        time.Now,
		logger:     logger,
	}
}

// Run processes updates until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(botCommands()...)); err != nil {
		b.logger.Warn().Err(err).Msg("failed to register bot commands")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info().Int("admins", len(b.admins)).Msg("bot started")

	for {
		select {
		case <-ctx.Done():
			b.wg.Wait()

			return fmt.Errorf("bot stopped: %w", ctx.Err())
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()

				return nil
			}

			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer worker.RecoverPanic(b.logger, "telegram update")

	if update.MyChatMember != nil {
		b.handleMembership(ctx, update.MyChatMember)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	b.handleMessage(ctx, update.Message)
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

// background runs fn detached from the update loop; Run waits for it on shutdown.
func (b *Bot) background(fn func()) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()
		defer worker.RecoverPanic(b.logger, "bot background task")

		fn()
	}()
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.replier.SendText(ctx, chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("failed to send reply")
	}
}

func (b *Bot) today() time.Time {
	return schedule.Today(b.now(), b.loc)
}

func botCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: "start", Description: "Запустить бота"},
		{Command: "help", Description: "Список команд"},
		{Command: "categories", Description: "Доступные категории"},
		{Command: "analyze", Description: "Анализ тренда: категория | запрос"},
		{Command: "digest", Description: "Дайджест за день"},
		{Command: "weekly", Description: "Дайджест за неделю"},
		{Command: "subscribe", Description: "Подписаться на ежедневный дайджест"},
		{Command: "unsubscribe", Description: "Отписаться от категории"},
		{Command: "subscriptions", Description: "Мои подписки"},
	}
}
