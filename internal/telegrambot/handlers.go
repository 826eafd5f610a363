package telegrambot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/ingest"
	"github.com/lueurxax/trend-digest-bot/internal/output/delivery"
	"github.com/lueurxax/trend-digest-bot/internal/process/analysis"
	db "github.com/lueurxax/trend-digest-bot/internal/storage"
)

const (
	welcomeText = "👋 Привет! Я бот для анализа трендов в различных категориях.\n\n" +
		"📊 Что я умею:\n" +
		"• Формирую ежедневные и еженедельные дайджесты новостей по выбранным категориям\n" +
		"• Анализирую тренды по вашему запросу\n" +
		"• Помогаю отслеживать важные изменения в интересующих вас сферах\n\n" +
		"Список команд: /help"

	groupWelcomeText = "👋 Привет! Я бот для анализа трендов в различных категориях.\n\n" +
		"Теперь я в этой группе и могу присылать ежедневные новости по подписке.\n" +
		"Чтобы подписать группу, используйте /subscribe <категория>."

	helpText = "📖 Команды:\n" +
		"/categories - доступные категории\n" +
		"/analyze <категория> | <запрос> - анализ тренда\n" +
		"/digest <категория> [ГГГГ-ММ-ДД] - дайджест за день\n" +
		"/weekly <категория> [ГГГГ-ММ-ДД] - дайджест за неделю, начиная с даты\n" +
		"/subscribe <категория> - ежедневный дайджест по подписке\n" +
		"/unsubscribe <категория> - отменить подписку\n" +
		"/subscriptions - мои подписки"

	adminHelpText = "\n\n🛠 Администрирование:\n" +
		"/sources [rss|telegram] - список источников\n" +
		"/addsource <rss|telegram> <url> <категория> - добавить источник\n" +
		"/delsource <id> - удалить источник\n" +
		"/parse - запустить парсинг источников\n" +
		"/llm - состояние LLM-провайдеров и дневной бюджет токенов\n" +
		"Отправьте CSV-файл (url,type,category), чтобы загрузить источники."

	msgQueued          = "⏳ Анализируем материалы... Результат придет отдельным сообщением."
	msgBusy            = "❌ Сервис перегружен, попробуйте позже."
	msgUnknownCommand  = "Неизвестная команда. Список команд: /help"
	msgAdminOnly       = "⛔ Команда доступна только администраторам."
	msgNoCategories    = "Категорий пока нет."
	msgUnknownCategory = "Категория %q не найдена. Доступные категории: /categories"
	msgStorageError    = "❌ Ошибка: не удалось обратиться к базе данных."
	msgParseRunning    = "⏳ Парсинг уже выполняется."
	msgParseStarted    = "⏳ Парсинг источников запущен..."
	msgNotCSV          = "❌ Пожалуйста, отправьте файл в формате CSV."
)

func (b *Bot) handleMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated) {
	joined := upd.NewChatMember.Status == "member" || upd.NewChatMember.Status == "administrator"
	if !joined || upd.OldChatMember.Status != "left" {
		return
	}

	b.logger.Info().Int64("chat_id", upd.Chat.ID).Msg("bot added to chat")
	b.reply(ctx, upd.Chat.ID, groupWelcomeText)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}

	if !msg.IsCommand() {
		return
	}

	b.logger.Info().Str("command", msg.Command()).Int64("user_id", msg.From.ID).Int64("chat_id", msg.Chat.ID).Msg("handling command")

	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.reply(ctx, msg.Chat.ID, welcomeText)
	case "help":
		b.handleHelp(ctx, msg)
	case "categories":
		b.handleCategories(ctx, msg)
	case "analyze":
		b.submit(ctx, msg, func() (analysis.Request, error) { return parseAnalyze(args) })
	case "digest":
		b.submit(ctx, msg, func() (analysis.Request, error) { return parseDigest(args, domain.DailyDigest, b.today()) })
	case "weekly":
		b.submit(ctx, msg, func() (analysis.Request, error) { return parseDigest(args, domain.WeeklyDigest, b.today()) })
	case "subscribe":
		b.handleSubscribe(ctx, msg, args)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, msg, args)
	case "subscriptions":
		b.handleSubscriptions(ctx, msg)
	case "sources", "addsource", "delsource", "parse", "llm":
		b.handleAdmin(ctx, msg, args)
	default:
		b.reply(ctx, msg.Chat.ID, msgUnknownCommand)
	}
}

func (b *Bot) handleAdmin(ctx context.Context, msg *tgbotapi.Message, args string) {
	if !b.isAdmin(msg.From.ID) {
		b.logger.Warn().Int64("user_id", msg.From.ID).Str("username", msg.From.UserName).Str("command", msg.Command()).Msg("unauthorized admin command")
		b.reply(ctx, msg.Chat.ID, msgAdminOnly)

		return
	}

	switch msg.Command() {
	case "sources":
		b.handleSources(ctx, msg, args)
	case "addsource":
		b.handleAddSource(ctx, msg, args)
	case "delsource":
		b.handleDeleteSource(ctx, msg, args)
	case "parse":
		b.handleParse(ctx, msg)
	case "llm":
		b.handleLLMStatus(ctx, msg)
	}
}

func (b *Bot) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := helpText
	if b.isAdmin(msg.From.ID) {
		text += adminHelpText
	}

	b.reply(ctx, msg.Chat.ID, text)
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) {
	categories, err := b.repo.Categories(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list categories")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	if len(categories) == 0 {
		b.reply(ctx, msg.Chat.ID, msgNoCategories)
		return
	}

	b.reply(ctx, msg.Chat.ID, formatList("📂 Доступные категории:", categories))
}

// submit validates the request and queues it; the result arrives from the pool.
func (b *Bot) submit(ctx context.Context, msg *tgbotapi.Message, parse func() (analysis.Request, error)) {
	req, err := parse()
	if err != nil {
		b.reply(ctx, msg.Chat.ID, err.Error())
		return
	}

	category, ok := b.resolveCategory(ctx, msg.Chat.ID, req.Category)
	if !ok {
		return
	}

	req.Category = category

	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	jobID, err := b.dispatcher.Submit(submitCtx, msg.Chat.ID, req)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to queue analysis")
		b.reply(ctx, msg.Chat.ID, msgBusy)

		return
	}

	b.logger.Info().Str("job_id", jobID).Str("mode", req.Mode.String()).Str("category", req.Category).Msg("analysis requested")
	b.reply(ctx, msg.Chat.ID, msgQueued)
}

// resolveCategory maps user input onto a known category, ignoring case.
func (b *Bot) resolveCategory(ctx context.Context, chatID int64, input string) (string, bool) {
	categories, err := b.repo.Categories(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list categories")
		b.reply(ctx, chatID, msgStorageError)

		return "", false
	}

	category, ok := containsFold(categories, input)
	if !ok {
		b.reply(ctx, chatID, fmt.Sprintf(msgUnknownCategory, input))
		return "", false
	}

	return category, true
}

func (b *Bot) handleSubscribe(ctx context.Context, msg *tgbotapi.Message, args string) {
	if args == "" {
		b.reply(ctx, msg.Chat.ID, "Формат: /subscribe <категория>")
		return
	}

	category, ok := b.resolveCategory(ctx, msg.Chat.ID, args)
	if !ok {
		return
	}

	added, err := b.repo.Subscribe(ctx, msg.Chat.ID, category)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to subscribe")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	if !added {
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Вы уже подписаны на категорию %q.", category))
		return
	}

	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Подписка на категорию %q оформлена.", category))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, msg *tgbotapi.Message, args string) {
	if args == "" {
		b.reply(ctx, msg.Chat.ID, "Формат: /unsubscribe <категория>")
		return
	}

	sub, err := b.repo.GetSubscription(ctx, msg.Chat.ID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to load subscription")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	category, ok := containsFold(sub.Categories, args)
	if !ok {
		b.reply(ctx, msg.Chat.ID, fmt.Sprintf("Вы не подписаны на категорию %q.", args))
		return
	}

	if _, err := b.repo.Unsubscribe(ctx, msg.Chat.ID, category); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to unsubscribe")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Подписка на категорию %q отменена.", category))
}

func (b *Bot) handleSubscriptions(ctx context.Context, msg *tgbotapi.Message) {
	sub, err := b.repo.GetSubscription(ctx, msg.Chat.ID)
	if err != nil {
		b.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("failed to load subscription")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	if len(sub.Categories) == 0 {
		b.reply(ctx, msg.Chat.ID, "У вас нет подписок. Подписаться: /subscribe <категория>")
		return
	}

	b.reply(ctx, msg.Chat.ID, formatList("🔔 Ваши подписки:", sub.Categories))
}

func (b *Bot) handleSources(ctx context.Context, msg *tgbotapi.Message, args string) {
	sourceType := strings.ToLower(args)

	sources, err := b.repo.ListSources(ctx, sourceType)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to list sources")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	if len(sources) == 0 {
		b.reply(ctx, msg.Chat.ID, "Источников нет.")
		return
	}

	b.reply(ctx, msg.Chat.ID, formatSources(sources))
}

func formatSources(sources []domain.Source) string {
	items := make([]string, 0, len(sources))
	for _, s := range sources {
		items = append(items, fmt.Sprintf("[%s] %s (%s)\n  id: %s", s.Type, s.URL, s.Category, s.ID))
	}

	return formatList(fmt.Sprintf("📚 Источники (%d):", len(sources)), items)
}

func (b *Bot) handleAddSource(ctx context.Context, msg *tgbotapi.Message, args string) {
	parsed, err := parseAddSource(args)
	if err != nil {
		b.reply(ctx, msg.Chat.ID, err.Error())
		return
	}

	src, err := b.repo.AddSource(ctx, parsed.url, parsed.sourceType, parsed.category)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateSource) {
			b.reply(ctx, msg.Chat.ID, "Такой источник уже добавлен.")
			return
		}

		b.logger.Error().Err(err).Msg("failed to add source")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Источник добавлен: %s (%s)\nid: %s", src.URL, src.Category, src.ID))
}

func (b *Bot) handleDeleteSource(ctx context.Context, msg *tgbotapi.Message, args string) {
	if args == "" {
		b.reply(ctx, msg.Chat.ID, "Формат: /delsource <id>")
		return
	}

	if err := b.repo.DeleteSource(ctx, args); err != nil {
		if errors.Is(err, db.ErrSourceNotFound) {
			b.reply(ctx, msg.Chat.ID, "Источник не найден.")
			return
		}

		b.logger.Error().Err(err).Str("source_id", args).Msg("failed to delete source")
		b.reply(ctx, msg.Chat.ID, msgStorageError)

		return
	}

	b.reply(ctx, msg.Chat.ID, "✅ Источник удален.")
}

func (b *Bot) handleParse(ctx context.Context, msg *tgbotapi.Message) {
	if b.ingester == nil {
		b.reply(ctx, msg.Chat.ID, "Парсинг недоступен в этом режиме.")
		return
	}

	if !b.parsing.CompareAndSwap(false, true) {
		b.reply(ctx, msg.Chat.ID, msgParseRunning)
		return
	}

	b.reply(ctx, msg.Chat.ID, msgParseStarted)

	chatID := msg.Chat.ID

	b.background(func() {
		defer b.parsing.Store(false)

		report, err := b.ingester.Run(ctx)
		if err != nil {
			b.logger.Error().Err(err).Msg("parse failed")
			b.reply(ctx, chatID, delivery.ErrorMessage(err.Error()))

			return
		}

		if err := b.replier.Send(ctx, chatID, delivery.KindReport, delivery.SplitMessage(formatReport(report), delivery.MaxMessageLength)); err != nil {
			b.logger.Error().Err(err).Msg("failed to send parse report")
		}
	})
}

func formatReport(r ingest.Report) string {
	var sb strings.Builder

	sb.WriteString("✅ Парсинг завершен!\n")
	fmt.Fprintf(&sb, "Источников: %d\n", r.Sources)
	fmt.Fprintf(&sb, "Получено материалов: %d\n", r.Parsed)
	fmt.Fprintf(&sb, "Векторизовано: %d\n", r.Vectorized)
	fmt.Fprintf(&sb, "Пропущено (дубликаты): %d\n", r.Skipped)
	fmt.Fprintf(&sb, "Длительность: %s", r.Duration.Round(time.Second))

	if len(r.Errors) > 0 {
		fmt.Fprintf(&sb, "\n\n⚠️ Ошибки (%d):", len(r.Errors))

		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "\n• %s", e)
		}
	}

	return sb.String()
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	if !b.isAdmin(msg.From.ID) {
		return
	}

	if !strings.HasSuffix(strings.ToLower(msg.Document.FileName), ".csv") {
		b.reply(ctx, msg.Chat.ID, msgNotCSV)
		return
	}

	report, err := b.importCSV(ctx, msg.Document.FileID)
	if err != nil {
		b.logger.Error().Err(err).Str("file", msg.Document.FileName).Msg("csv import failed")
		b.reply(ctx, msg.Chat.ID, "❌ Ошибка при обработке файла: "+err.Error())

		return
	}

	b.reply(ctx, msg.Chat.ID, fmt.Sprintf("✅ Загрузка CSV завершена!\nДобавлено: %d\nДубликатов: %d\nОшибок: %d\n\nЗапустить парсинг: /parse",
		report.Added, report.Skipped, report.Errors))
}

func (b *Bot) importCSV(ctx context.Context, fileID string) (ingest.ImportReport, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return ingest.ImportReport{}, fmt.Errorf("get file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ingest.ImportReport{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return ingest.ImportReport{}, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ingest.ImportReport{}, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	return ingest.ImportSources(ctx, b.repo, resp.Body, b.logger)
}
