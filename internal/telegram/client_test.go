package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

func newTestClient() *Client {
	return &Client{logger: zap.NewNop()}
}

func testEntities(userID int64) tg.Entities {
	return tg.Entities{Users: map[int64]*tg.User{
		userID: {ID: userID, AccessHash: 1, Username: "alice"},
	}}
}

func testMessage(userID int64) *tg.Message {
	return &tg.Message{
		ID:      1,
		Message: "hi",
		PeerID:  &tg.PeerUser{UserID: userID},
		FromID:  &tg.PeerUser{UserID: userID},
	}
}

// Handlers can be registered while the dispatcher is already delivering
// updates on another goroutine.
func TestOnMessageConcurrentWithDelivery(t *testing.T) {
	c := newTestClient()
	e := testEntities(7)
	msg := testMessage(7)

	var delivered atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			c.OnMessage(func(ctx context.Context, ev Event) error {
				delivered.Add(1)
				return nil
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if err := c.handleMessage(context.Background(), e, msg); err != nil {
				t.Errorf("handleMessage: %v", err)
			}
		}
	}()
	wg.Wait()

	before := delivered.Load()
	if err := c.handleMessage(context.Background(), e, msg); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	if delivered.Load() != before+200 {
		t.Errorf("delivery reached %d of 200 registered handlers", delivered.Load()-before)
	}
}

// The authenticated account id may be stored while the dispatcher is
// resolving senders; outgoing private-chat messages pick it up.
func TestSelfIDConcurrentWithSenderResolution(t *testing.T) {
	c := newTestClient()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 200; i++ {
			c.selfID.Store(i)
		}
	}()
	for i := 0; i < 200; i++ {
		out := &tg.Message{Out: true, PeerID: &tg.PeerUser{UserID: 7}}
		if sender := c.senderOf(tg.Entities{}, out); sender != nil && !sender.IsSelf {
			t.Fatal("outgoing message resolved to a non-self sender")
		}
	}
	<-done

	if got := c.SelfID(); got != 200 {
		t.Errorf("SelfID = %d, want 200", got)
	}
	sender := c.senderOf(tg.Entities{}, &tg.Message{Out: true, PeerID: &tg.PeerUser{UserID: 7}})
	if sender == nil || sender.ID != 200 || !sender.IsSelf {
		t.Errorf("outgoing sender = %+v, want self id 200", sender)
	}
}
