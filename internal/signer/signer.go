// Package signer runs scheduled sign-in tasks: at the configured time it
// posts the sign-in text to each chat in order and reacts to whatever
// challenge the chat throws back.
package signer

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/QQHoney/tg-signer/internal/ai"
	"github.com/QQHoney/tg-signer/internal/config"
	"github.com/QQHoney/tg-signer/internal/storage"
	"github.com/QQHoney/tg-signer/internal/telegram"
)

const (
	responsePollInterval = 2 * time.Second
	responseWait         = 30 * time.Second
)

// Signer executes one sign task on its schedule.
type Signer struct {
	task   string
	cfg    *config.SignConfig
	client *telegram.Client
	ai     *ai.Client
	store  *storage.Storage
	logger *zap.Logger
}

// New creates a signer for a task. The ai client may be nil; image and
// calculation challenges then fall back to local handling or fail.
func New(task string, cfg *config.SignConfig, client *telegram.Client, aiClient *ai.Client, store *storage.Storage, logger *zap.Logger) *Signer {
	return &Signer{
		task:   task,
		cfg:    cfg,
		client: client,
		ai:     aiClient,
		store:  store,
		logger: logger,
	}
}

// Run signs in on schedule until ctx is cancelled.
func (s *Signer) Run(ctx context.Context) error {
	s.logger.Info("Sign task started.", zap.String("task", s.task), zap.String("sign_at", s.cfg.SignAt))

	for {
		next, err := nextRun(s.cfg.SignAt, time.Now())
		if err != nil {
			return fmt.Errorf("sign task %q: %w", s.task, err)
		}
		if s.cfg.RandomSeconds > 0 {
			next = next.Add(rand.N(time.Duration(s.cfg.RandomSeconds) * time.Second))
		}
		s.logger.Info("Next sign-in scheduled", zap.String("task", s.task), zap.Time("at", next))

		select {
		case <-ctx.Done():
			s.logger.Info("Sign task stopped.", zap.String("task", s.task))
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		if err := s.SignOnce(ctx); err != nil {
			s.logger.Error("Sign-in run failed", zap.String("task", s.task), zap.Error(err))
		}
	}
}

// SignOnce signs every chat of the task in order, skipping chats already
// signed today. Chats are separated by the configured interval to avoid
// FLOOD_WAIT errors.
func (s *Signer) SignOnce(ctx context.Context) error {
	now := time.Now()
	for i, chat := range s.cfg.Chats {
		chatKey := chat.ChatID.String()

		last, found, err := s.store.LastSignTime(s.task, chatKey)
		if err != nil {
			return fmt.Errorf("check last sign time: %w", err)
		}
		if found && sameDay(last.Local(), now) {
			s.logger.Info("Chat already signed today, skipping",
				zap.String("task", s.task), zap.String("chat_id", chatKey))
			continue
		}

		if err := s.signChat(ctx, chat); err != nil {
			s.logger.Error("Failed to sign chat",
				zap.String("task", s.task), zap.String("chat_id", chatKey), zap.Error(err))
			rec := &storage.SignRecord{Task: s.task, ChatID: chatKey, Status: "error", SignedAt: time.Now()}
			if saveErr := s.store.SaveSignRecord(rec); saveErr != nil {
				s.logger.Error("Failed to save sign record", zap.Error(saveErr))
			}
		}

		if i < len(s.cfg.Chats)-1 && s.cfg.SignInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(s.cfg.SignInterval) * time.Second):
			}
		}
	}
	return nil
}

func (s *Signer) signChat(ctx context.Context, chat config.SignChat) error {
	p, err := s.client.ResolvePeer(ctx, chat.ChatID)
	if err != nil {
		return err
	}

	var msgID int
	if chat.AsDice != "" {
		msgID, err = s.client.SendDice(ctx, p, chat.AsDice)
	} else {
		msgID, err = s.client.SendText(ctx, p, chat.SignText)
	}
	if err != nil {
		return err
	}
	s.logger.Info("Signed in",
		zap.String("task", s.task), zap.String("chat_id", chat.ChatID.String()), zap.Int("message_id", msgID))

	if chat.DeleteAfter != nil {
		s.client.DeleteAfter(ctx, p, msgID, *chat.DeleteAfter)
	}

	if chat.NeedsResponse() {
		if err := s.respond(ctx, chat, p, msgID); err != nil {
			s.logger.Error("Failed to answer sign-in challenge",
				zap.String("task", s.task), zap.String("chat_id", chat.ChatID.String()), zap.Error(err))
		}
	}

	rec := &storage.SignRecord{
		Task:      s.task,
		ChatID:    chat.ChatID.String(),
		MessageID: int64(msgID),
		Status:    "ok",
		SignedAt:  time.Now(),
	}
	return s.store.SaveSignRecord(rec)
}

// respond polls the chat for the challenge message that follows a sign-in
// and reacts to it: clicking a named button, answering a calculation, or
// choosing an option by content.
func (s *Signer) respond(ctx context.Context, chat config.SignChat, p tg.InputPeerClass, afterID int) error {
	deadline := time.Now().Add(responseWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(responsePollInterval):
		}

		messages, err := s.client.RecentMessages(ctx, p, 5)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			if msg.ID <= afterID || msg.Out {
				continue
			}
			if handled, err := s.handleChallenge(ctx, chat, p, msg); handled || err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("no challenge message appeared within %s", responseWait)
}

func (s *Signer) handleChallenge(ctx context.Context, chat config.SignChat, p tg.InputPeerClass, msg *tg.Message) (bool, error) {
	if chat.TextOfBtnToClick != "" {
		for _, btn := range inlineButtons(msg) {
			if strings.Contains(btn.Text, chat.TextOfBtnToClick) {
				return true, s.client.ClickButton(ctx, p, msg.ID, btn.Data)
			}
		}
	}

	if chat.HasCalculationProblem && msg.Message != "" {
		answer, ok := calcAnswer(msg.Message)
		if !ok && s.ai != nil {
			var err error
			if answer, err = s.ai.SolveCalculation(ctx, msg.Message); err != nil {
				return true, err
			}
			ok = true
		}
		if !ok {
			return false, nil
		}
		_, err := s.client.SendText(ctx, p, answer)
		return true, err
	}

	if chat.ChooseOptionByImage {
		buttons := inlineButtons(msg)
		if len(buttons) == 0 {
			return false, nil
		}
		if s.ai == nil {
			return true, fmt.Errorf("choose_option_by_image requires the AI client")
		}
		options := make([]string, len(buttons))
		for i, btn := range buttons {
			options[i] = btn.Text
		}
		choice, err := s.ai.ChooseOption(ctx, msg.Message, options)
		if err != nil {
			return true, err
		}
		for _, btn := range buttons {
			if btn.Text == choice {
				return true, s.client.ClickButton(ctx, p, msg.ID, btn.Data)
			}
		}
	}
	return false, nil
}

// inlineButtons flattens the callback buttons of a message's inline
// keyboard, if it has one.
func inlineButtons(msg *tg.Message) []*tg.KeyboardButtonCallback {
	markup, ok := msg.GetReplyMarkup()
	if !ok {
		return nil
	}
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok {
		return nil
	}
	var buttons []*tg.KeyboardButtonCallback
	for _, row := range inline.Rows {
		for _, b := range row.Buttons {
			if btn, ok := b.(*tg.KeyboardButtonCallback); ok {
				buttons = append(buttons, btn)
			}
		}
	}
	return buttons
}

var calcRe = regexp.MustCompile(`(-?\d+)\s*([-+*×xX])\s*(-?\d+)`)

// calcAnswer solves a simple arithmetic challenge embedded in a message
// locally. Anything it cannot parse is left to the AI client.
func calcAnswer(text string) (string, bool) {
	m := calcRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	a, _ := strconv.ParseInt(m[1], 10, 64)
	b, _ := strconv.ParseInt(m[3], 10, 64)
	var result int64
	switch m[2] {
	case "+":
		result = a + b
	case "-":
		result = a - b
	default:
		result = a * b
	}
	return strconv.FormatInt(result, 10), true
}

// nextRun computes the next execution time for a sign_at expression: a
// crontab expression when it contains spaces, otherwise a clock time in
// "15:04" or "15:04:05" form.
func nextRun(signAt string, now time.Time) (time.Time, error) {
	signAt = strings.TrimSpace(signAt)
	if strings.Contains(signAt, " ") {
		schedule, err := cron.ParseStandard(signAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", signAt, err)
		}
		return schedule.Next(now), nil
	}

	layout := "15:04"
	if strings.Count(signAt, ":") == 2 {
		layout = "15:04:05"
	}
	at, err := time.Parse(layout, signAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid sign_at time %q: %w", signAt, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), at.Second(), 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
