// Package telegram reads public channel posts through an MTProto user session.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"github.com/lueurxax/trend-digest-bot/internal/core/domain"
	"github.com/lueurxax/trend-digest-bot/internal/ingest"
)

var (
	// ErrNotConnected is returned by Fetch outside of Run.
	ErrNotConnected = errors.New("telegram client is not connected")
	// ErrChannelNotFound indicates the username did not resolve to a chat.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrNotAChannel indicates the username resolved to something else.
	ErrNotAChannel = errors.New("peer is not a channel")
	// ErrEmptyUsername is returned for source URLs without a channel name.
	ErrEmptyUsername = errors.New("empty channel username")
)

const (
	floodWaitType    = "FLOOD_WAIT"
	maxFloodWaits    = 2
	defaultLimit     = 50
	postURLFmt       = "https://t.me/%s/%d"
	logKeyChannel    = "channel"
	maxFloodWaitTime = 5 * time.Minute
)

// Config configures the user session.
type Config struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string
	SessionPath string
	// Limit is how many recent messages are read per channel.
	Limit int
}

// Reader implements ingest.Fetcher for telegram sources.
type Reader struct {
	cfg    Config
	logger *zerolog.Logger

	mu  sync.RWMutex
	api *tg.Client
}

var _ ingest.Fetcher = (*Reader)(nil)

func New(cfg Config, logger *zerolog.Logger) *Reader {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	l := logger.With().Str("component", "telegram_reader").Logger()

	return &Reader{cfg: cfg, logger: &l}
}

// Run connects, authenticates if the session needs it and calls fn while the
// connection is up. Fetch only works inside fn.
func (r *Reader) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	client := telegram.NewClient(r.cfg.APIID, r.cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: r.cfg.SessionPath},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, r.authFlow()); err != nil {
			return fmt.Errorf("telegram auth: %w", err)
		}

		r.logger.Info().Msg("authenticated as user")

		r.setAPI(tg.NewClient(client))
		defer r.setAPI(nil)

		return fn(ctx)
	})
}

func (r *Reader) setAPI(api *tg.Client) {
	r.mu.Lock()
	r.api = api
	r.mu.Unlock()
}

func (r *Reader) getAPI() *tg.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.api
}

// Fetch reads the latest messages of the channel named by source.URL.
func (r *Reader) Fetch(ctx context.Context, source domain.Source) ([]domain.Material, error) {
	api := r.getAPI()
	if api == nil {
		return nil, ErrNotConnected
	}

	username := ChannelUsername(source.URL)
	if username == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyUsername, source.URL)
	}

	peer, err := r.resolve(ctx, api, username)
	if err != nil {
		return nil, err
	}

	messages, err := r.history(ctx, api, peer, username)
	if err != nil {
		return nil, err
	}

	materials := make([]domain.Material, 0, len(messages))

	for _, m := range messages {
		msg, ok := m.(*tg.Message)
		if !ok || strings.TrimSpace(msg.Message) == "" {
			continue
		}

		materials = append(materials, ToMaterial(username, msg.ID, msg.Message, time.Unix(int64(msg.Date), 0).UTC(), source.Category))
	}

	r.logger.Debug().Str(logKeyChannel, username).Int("materials", len(materials)).Msg("channel read")

	return materials, nil
}

// ToMaterial converts a channel post.
func ToMaterial(username string, id int, text string, date time.Time, category string) domain.Material {
	title := ingest.Truncate(ingest.CleanText(text), ingest.TitleRunes)

	return domain.Material{
		URL:        fmt.Sprintf(postURLFmt, username, id),
		Title:      title,
		Text:       ingest.ComposeText(title, text),
		Category:   category,
		Date:       ingest.FormatDate(date),
		SourceType: domain.SourceTypeTelegram,
	}
}

func (r *Reader) resolve(ctx context.Context, api *tg.Client, username string) (tg.InputPeerClass, error) {
	var resolved *tg.ContactsResolvedPeer

	err := r.withFloodWait(ctx, username, func() error {
		var err error
		resolved, err = api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", username, err)
	}

	if len(resolved.Chats) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, username)
	}

	channel, ok := resolved.Chats[0].(*tg.Channel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAChannel, username)
	}

	return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, nil
}

func (r *Reader) history(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, username string) ([]tg.MessageClass, error) {
	var history tg.MessagesMessagesClass

	err := r.withFloodWait(ctx, username, func() error {
		var err error
		history, err = api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: peer, Limit: r.cfg.Limit})

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get history of %s: %w", username, err)
	}

	switch h := history.(type) {
	case *tg.MessagesMessages:
		return h.Messages, nil
	case *tg.MessagesMessagesSlice:
		return h.Messages, nil
	case *tg.MessagesChannelMessages:
		return h.Messages, nil
	default:
		return nil, nil
	}
}

// withFloodWait runs call, sleeping out FLOOD_WAIT errors a bounded number of times.
func (r *Reader) withFloodWait(ctx context.Context, username string, call func() error) error {
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}

		floodErr, ok := tgerr.As(err)
		if !ok || floodErr.Type != floodWaitType || attempt >= maxFloodWaits {
			return err
		}

		wait := min(time.Duration(floodErr.Argument)*time.Second, maxFloodWaitTime)
		r.logger.Warn().Dur("wait", wait).Str(logKeyChannel, username).Msg("flood wait")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ChannelUsername extracts the channel name from t.me links or @handles.
func ChannelUsername(raw string) string {
	s := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}

	for _, prefix := range []string{"www.", "t.me/", "telegram.me/", "s/", "@"} {
		s = strings.TrimPrefix(s, prefix)
	}

	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}

	return s
}
