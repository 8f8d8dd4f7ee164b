// Package telegram wraps the gotd MTProto client with the operations the
// signer and monitor need: sending, deleting and forwarding messages,
// answering inline buttons, and delivering incoming messages as events.
package telegram

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/QQHoney/tg-signer/internal/config"
	"github.com/QQHoney/tg-signer/internal/peer"
	"github.com/QQHoney/tg-signer/internal/rules"
)

// Event is one incoming message, delivered to registered handlers as a
// read-only snapshot plus the handles needed to reply to it.
type Event struct {
	Message   rules.Message
	MessageID int
	Peer      tg.InputPeerClass
}

// Handler consumes incoming message events.
type Handler func(ctx context.Context, ev Event) error

// Client encapsulates the Telegram client.
//
// The dispatcher delivers updates on the client's own goroutine as soon as
// an authorized session connects, so everything it touches is synchronized:
// selfID is atomic and the handler list is guarded by mu.
type Client struct {
	*telegram.Client
	api        *tg.Client
	sender     *message.Sender
	dispatcher tg.UpdateDispatcher
	logger     *zap.Logger
	phone      string

	selfID atomic.Int64

	mu       sync.RWMutex
	handlers []Handler
}

// NewClient creates and initializes a new Telegram client.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	dispatcher := tg.NewUpdateDispatcher()
	client := telegram.NewClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, telegram.Options{
		Logger:         logger.Named("gotd"),
		SessionStorage: &session.FileStorage{Path: cfg.Telegram.SessionFile},
		UpdateHandler:  dispatcher,
	})

	c := &Client{
		Client:     client,
		api:        client.API(),
		sender:     message.NewSender(client.API()),
		dispatcher: dispatcher,
		logger:     logger,
		phone:      cfg.Telegram.Phone,
	}
	c.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.handleMessage(ctx, e, u.Message)
	})
	c.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.handleMessage(ctx, e, u.Message)
	})
	return c
}

// OnMessage registers a handler for incoming messages. Safe to call while
// the client is running; register before Run to not miss early updates.
func (c *Client) OnMessage(h Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
}

// SelfID returns the numeric id of the authenticated account, or 0 before
// Run has authenticated.
func (c *Client) SelfID() int64 {
	return c.selfID.Load()
}

// Run starts the Telegram client, authenticates, then invokes f. The
// client keeps receiving updates until f returns or ctx is cancelled.
func (c *Client) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return c.Client.Run(ctx, func(ctx context.Context) error {
		if err := c.authenticate(ctx); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		self, err := c.Self(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch self: %w", err)
		}
		c.selfID.Store(self.ID)
		c.logger.Info("Telegram client started and authenticated.",
			zap.Int64("self_id", self.ID), zap.String("username", self.Username))
		return f(ctx)
	})
}

func (c *Client) authenticate(ctx context.Context) error {
	flow := auth.NewFlow(
		auth.Constant(c.phone, "", auth.CodeAuthenticatorFunc(func(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
			fmt.Print("Enter the code sent to your Telegram account: ")
			reader := bufio.NewReader(os.Stdin)
			code, err := reader.ReadString('\n')
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(code), nil
		})),
		auth.SendCodeOptions{},
	)
	return flow.Run(ctx, c.Auth())
}

// ResolvePeer turns a chat identifier into an input peer: usernames via
// contacts resolution, numeric ids by scanning the account's dialogs for a
// matching user, chat or channel.
func (c *Client) ResolvePeer(ctx context.Context, id peer.ID) (tg.InputPeerClass, error) {
	if name, ok := id.Username(); ok {
		return c.resolveUsername(ctx, peer.NormalizedHandle(name))
	}
	num, _ := id.Int64()
	return c.findDialogPeer(ctx, num)
}

func (c *Client) resolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	res, err := c.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve username %q: %w", username, err)
	}

	switch p := res.Peer.(type) {
	case *tg.PeerUser:
		for _, u := range res.Users {
			if user, ok := u.(*tg.User); ok && user.ID == p.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
			}
		}
	case *tg.PeerChannel:
		for _, ch := range res.Chats {
			if channel, ok := ch.(*tg.Channel); ok && channel.ID == p.ChannelID {
				return &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, nil
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ChatID}, nil
	}
	return nil, fmt.Errorf("resolved username %q but no matching entity returned", username)
}

func (c *Client) findDialogPeer(ctx context.Context, id int64) (tg.InputPeerClass, error) {
	dialogs, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get dialogs: %w", err)
	}

	var users []tg.UserClass
	var chats []tg.ChatClass
	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		users, chats = d.Users, d.Chats
	case *tg.MessagesDialogsSlice:
		users, chats = d.Users, d.Chats
	default:
		return nil, fmt.Errorf("unexpected dialogs type %T", dialogs)
	}

	for _, u := range users {
		if user, ok := u.(*tg.User); ok && user.ID == id {
			return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}, nil
		}
	}
	for _, ch := range chats {
		switch chat := ch.(type) {
		case *tg.Chat:
			if chat.ID == id {
				return &tg.InputPeerChat{ChatID: chat.ID}, nil
			}
		case *tg.Channel:
			if chat.ID == id {
				return &tg.InputPeerChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}, nil
			}
		}
	}
	return nil, fmt.Errorf("chat %d not found in dialogs", id)
}

// SendText sends a text message and returns the new message id.
func (c *Client) SendText(ctx context.Context, p tg.InputPeerClass, text string) (int, error) {
	updates, err := c.sender.To(p).Text(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("failed to send message: %w", err)
	}
	return messageID(updates), nil
}

// SendDice sends an animated emoji roll (dice, dart, slot machine and the
// like) instead of plain text.
func (c *Client) SendDice(ctx context.Context, p tg.InputPeerClass, emoticon string) (int, error) {
	updates, err := c.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     p,
		Media:    &tg.InputMediaDice{Emoticon: emoticon},
		RandomID: rand.Int64(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send dice: %w", err)
	}
	return messageID(updates), nil
}

// DeleteMessage deletes a single message for everyone.
func (c *Client) DeleteMessage(ctx context.Context, p tg.InputPeerClass, id int) error {
	if ch, ok := p.(*tg.InputPeerChannel); ok {
		_, err := c.api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
			ID:      []int{id},
		})
		return err
	}
	_, err := c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     []int{id},
	})
	return err
}

// DeleteAfter deletes a message once the delay has passed. The deletion
// runs in the background and is abandoned when ctx is cancelled.
func (c *Client) DeleteAfter(ctx context.Context, p tg.InputPeerClass, id int, seconds int) {
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(seconds) * time.Second):
			if err := c.DeleteMessage(ctx, p, id); err != nil {
				c.logger.Error("Failed to delete message", zap.Int("message_id", id), zap.Error(err))
			}
		}
	}()
}

// Forward forwards a message to another peer.
func (c *Client) Forward(ctx context.Context, from, to tg.InputPeerClass, id int) error {
	_, err := c.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ToPeer:   to,
		ID:       []int{id},
		RandomID: []int64{rand.Int64()},
	})
	if err != nil {
		return fmt.Errorf("failed to forward message: %w", err)
	}
	return nil
}

// ClickButton answers an inline callback button on a message.
func (c *Client) ClickButton(ctx context.Context, p tg.InputPeerClass, msgID int, data []byte) error {
	req := &tg.MessagesGetBotCallbackAnswerRequest{
		Peer:  p,
		MsgID: msgID,
	}
	req.SetData(data)
	if _, err := c.api.MessagesGetBotCallbackAnswer(ctx, req); err != nil {
		return fmt.Errorf("failed to click button: %w", err)
	}
	return nil
}

// RecentMessages fetches the newest messages of a chat, newest first.
func (c *Client) RecentMessages(ctx context.Context, p tg.InputPeerClass, limit int) ([]*tg.Message, error) {
	history, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  p,
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var raw []tg.MessageClass
	switch h := history.(type) {
	case *tg.MessagesMessages:
		raw = h.Messages
	case *tg.MessagesMessagesSlice:
		raw = h.Messages
	case *tg.MessagesChannelMessages:
		raw = h.Messages
	default:
		return nil, fmt.Errorf("unexpected history type %T", history)
	}

	var messages []*tg.Message
	for _, m := range raw {
		if msg, ok := m.(*tg.Message); ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (c *Client) handleMessage(ctx context.Context, e tg.Entities, msg tg.MessageClass) error {
	m, ok := msg.(*tg.Message)
	if !ok {
		return nil
	}

	ev, ok := c.buildEvent(e, m)
	if !ok {
		return nil
	}
	c.mu.RLock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()
	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			c.logger.Error("Message handler failed", zap.Int("message_id", ev.MessageID), zap.Error(err))
		}
	}
	return nil
}

// buildEvent converts a raw message plus its update entities into an
// Event. Returns false when the peer cannot be mapped.
func (c *Client) buildEvent(e tg.Entities, m *tg.Message) (Event, bool) {
	var (
		chatID    int64
		inputPeer tg.InputPeerClass
	)
	switch p := m.PeerID.(type) {
	case *tg.PeerUser:
		chatID = p.UserID
		if user, ok := e.Users[p.UserID]; ok {
			inputPeer = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
		}
	case *tg.PeerChat:
		chatID = p.ChatID
		inputPeer = &tg.InputPeerChat{ChatID: p.ChatID}
	case *tg.PeerChannel:
		chatID = p.ChannelID
		if ch, ok := e.Channels[p.ChannelID]; ok {
			inputPeer = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
		}
	default:
		return Event{}, false
	}
	if inputPeer == nil {
		return Event{}, false
	}

	return Event{
		Message: rules.Message{
			ChatID: peer.Num(chatID),
			Sender: c.senderOf(e, m),
			Text:   m.Message,
		},
		MessageID: m.ID,
		Peer:      inputPeer,
	}, true
}

// senderOf resolves the message author. Service and anonymous messages
// have no resolvable sender and yield nil.
func (c *Client) senderOf(e tg.Entities, m *tg.Message) *rules.Sender {
	selfID := c.selfID.Load()
	var userID int64
	switch from := m.FromID.(type) {
	case *tg.PeerUser:
		userID = from.UserID
	case nil:
		// Private chats omit FromID; the author is the peer user, or the
		// authenticated account for outgoing messages.
		if m.Out {
			userID = selfID
		} else if p, ok := m.PeerID.(*tg.PeerUser); ok {
			userID = p.UserID
		}
	default:
		return nil
	}
	if userID == 0 {
		return nil
	}

	sender := &rules.Sender{ID: userID, IsSelf: m.Out || userID == selfID}
	if user, ok := e.Users[userID]; ok {
		sender.Username = user.Username
	}
	return sender
}

// messageID extracts the id of a freshly sent message from the resulting
// updates.
func messageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		for _, upd := range u.Updates {
			if m, ok := upd.(*tg.UpdateMessageID); ok {
				return m.ID
			}
		}
	}
	return 0
}
