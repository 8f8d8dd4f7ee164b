// Package monitor runs monitor tasks: every incoming message is checked
// against the task's rules and the first matching rule's actions are
// carried out.
package monitor

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/QQHoney/tg-signer/internal/ai"
	"github.com/QQHoney/tg-signer/internal/config"
	"github.com/QQHoney/tg-signer/internal/push"
	"github.com/QQHoney/tg-signer/internal/rules"
	"github.com/QQHoney/tg-signer/internal/storage"
	"github.com/QQHoney/tg-signer/internal/telegram"
)

// Session is one running monitor task.
type Session struct {
	task   string
	set    *rules.Set
	client *telegram.Client
	ai     *ai.Client
	push   *push.ServerChan
	store  *storage.Storage
	logger *zap.Logger
}

// New creates a session over a monitor config. The ai client may be nil;
// rules with ai_reply then fall back to their derived text.
func New(task string, cfg *config.MonitorConfig, client *telegram.Client, aiClient *ai.Client, pusher *push.ServerChan, store *storage.Storage, logger *zap.Logger) *Session {
	return &Session{
		task:   task,
		set:    cfg.RuleSet(),
		client: client,
		ai:     aiClient,
		push:   pusher,
		store:  store,
		logger: logger,
	}
}

// Register subscribes the session to the client's update feed. Call it
// before the client connects so no early message slips past the rules.
func (s *Session) Register() {
	s.client.OnMessage(s.handle)
}

// Run blocks until ctx is cancelled. The session must be registered first.
func (s *Session) Run(ctx context.Context) error {
	ids := s.set.WatchedChatIDs()
	watched := make([]string, len(ids))
	for i, id := range ids {
		watched[i] = id.String()
	}
	s.logger.Info("Monitor task started.",
		zap.String("task", s.task), zap.Int("rules", s.set.Len()), zap.Strings("watched_chats", watched))

	<-ctx.Done()
	s.logger.Info("Monitor task stopped.", zap.String("task", s.task))
	return ctx.Err()
}

// handle evaluates the rules in order against one incoming message and
// performs the actions of the first match. Rule configuration errors
// (bad patterns) are logged with the offending rule and skipped, so one
// broken rule does not stall the whole task.
func (s *Session) handle(ctx context.Context, ev telegram.Event) error {
	for i, rule := range s.set.Rules {
		outcome, err := rules.Evaluate(rule, ev.Message)
		if err != nil {
			s.logger.Error("Rule evaluation failed, fix the rule config",
				zap.String("task", s.task), zap.Int("rule_index", i), zap.Error(err))
			continue
		}
		if !outcome.Matched {
			continue
		}

		s.logger.Info("Rule matched",
			zap.String("task", s.task),
			zap.Int("rule_index", i),
			zap.String("chat_id", ev.Message.ChatID.String()),
			zap.String("text", ev.Message.Text))
		s.act(ctx, i, rule, outcome, ev)
		return nil
	}
	return nil
}

func (s *Session) act(ctx context.Context, ruleIndex int, rule *rules.MatchRule, outcome rules.Outcome, ev telegram.Event) {
	sendText := outcome.SendText
	if rule.AIReply && s.ai != nil {
		reply, err := s.ai.Reply(ctx, rule.AIPrompt, ev.Message.Text)
		if err != nil {
			s.logger.Error("AI reply failed, falling back to derived text",
				zap.String("task", s.task), zap.Int("rule_index", ruleIndex), zap.Error(err))
		} else {
			sendText = reply
		}
	}

	if sendText != "" {
		msgID, err := s.client.SendText(ctx, ev.Peer, sendText)
		if err != nil {
			s.logger.Error("Failed to send reply", zap.String("task", s.task), zap.Error(err))
		} else if rule.DeleteAfter != nil {
			s.client.DeleteAfter(ctx, ev.Peer, msgID, *rule.DeleteAfter)
		}
	}

	if rule.ForwardToChatID != nil {
		if to, err := s.client.ResolvePeer(ctx, *rule.ForwardToChatID); err != nil {
			s.logger.Error("Failed to resolve forward target", zap.String("task", s.task), zap.Error(err))
		} else if err := s.client.Forward(ctx, ev.Peer, to, ev.MessageID); err != nil {
			s.logger.Error("Failed to forward message", zap.String("task", s.task), zap.Error(err))
		}
	}

	if rule.PushViaServerChan && s.push != nil && rule.ServerChanSendKey != "" {
		title := "tg-signer: " + rule.String()
		if err := s.push.Push(ctx, rule.ServerChanSendKey, title, ev.Message.Text); err != nil {
			s.logger.Error("Failed to push notification", zap.String("task", s.task), zap.Error(err))
		}
	}

	var sender string
	if ev.Message.Sender != nil {
		if ev.Message.Sender.Username != "" {
			sender = ev.Message.Sender.Username
		} else {
			sender = strconv.FormatInt(ev.Message.Sender.ID, 10)
		}
	}
	event := &storage.MonitorEvent{
		Task:      s.task,
		ChatID:    ev.Message.ChatID.String(),
		RuleIndex: ruleIndex,
		Sender:    sender,
		Matched:   ev.Message.Text,
		SentText:  sendText,
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveMonitorEvent(event); err != nil {
		s.logger.Error("Failed to save monitor event", zap.String("task", s.task), zap.Error(err))
	}
}
