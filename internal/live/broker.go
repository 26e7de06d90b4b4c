package live

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"quest-chat-service/internal/models"
	"quest-chat-service/internal/repositories"
)

// Subscription states. A subscription moves Unsubscribed -> Subscribing ->
// Live -> Unsubscribed; Unsubscribed is terminal.
const (
	StateUnsubscribed int32 = iota
	StateSubscribing
	StateLive
)

const snapshotTimeout = 5 * time.Second

type subscription struct {
	chatID   string
	onUpdate func([]models.Message)
	state    atomic.Int32
}

// Broker maintains live, ordered views of chat conversations. Every
// notification re-delivers the complete current message set for the chat,
// re-sorted by timestamp, to each subscriber. The broker does not
// re-establish anything on store failure; a failed refresh is skipped and
// the next notification tries again.
type Broker struct {
	messageRepo repositories.MessageRepository
	logger      *logrus.Logger

	mu    sync.RWMutex
	rooms map[string]map[*subscription]bool
}

// NewBroker creates an empty broker.
func NewBroker(messageRepo repositories.MessageRepository, logger *logrus.Logger) *Broker {
	return &Broker{
		messageRepo: messageRepo,
		logger:      logger,
		rooms:       make(map[string]map[*subscription]bool),
	}
}

// Subscribe opens a live view of a chat. The initial snapshot is delivered
// before Subscribe returns; afterwards onUpdate fires on every
// notification for the chat. The returned disposer detaches the listener
// and is safe to call more than once; no new deliveries start after it
// returns.
func (b *Broker) Subscribe(chatID string, onUpdate func([]models.Message)) func() {
	sub := &subscription{chatID: chatID, onUpdate: onUpdate}
	sub.state.Store(StateSubscribing)

	b.mu.Lock()
	if _, ok := b.rooms[chatID]; !ok {
		b.rooms[chatID] = make(map[*subscription]bool)
	}
	b.rooms[chatID][sub] = true
	b.mu.Unlock()

	// Go live before the initial read. A send landing while the snapshot
	// is being read then reaches this subscriber through its own
	// notification instead of staying invisible until the next send.
	sub.state.CompareAndSwap(StateSubscribing, StateLive)

	if msgs, err := b.snapshot(chatID); err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Warn("initial snapshot failed")
	} else if sub.state.Load() == StateLive {
		sub.onUpdate(msgs)
	}

	return func() { b.remove(sub) }
}

// Notify refreshes every live subscription of the chat with the current
// full message set.
func (b *Broker) Notify(chatID string) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.rooms[chatID]))
	for sub := range b.rooms[chatID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	msgs, err := b.snapshot(chatID)
	if err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Warn("snapshot refresh failed")
		return
	}
	for _, sub := range subs {
		if sub.state.Load() == StateLive {
			sub.onUpdate(msgs)
		}
	}
}

// History returns the full conversation, ordered ascending by timestamp.
func (b *Broker) History(ctx context.Context, chatID string) ([]models.Message, error) {
	msgs, err := b.messageRepo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sortByTimestamp(msgs)
	return msgs, nil
}

// Recent returns the newest messages, descending, capped at limit. This is
// a one-shot read, not a live view.
func (b *Broker) Recent(ctx context.Context, chatID string, limit int) ([]models.Message, error) {
	return b.messageRepo.RecentMessages(ctx, chatID, limit)
}

// Subscribers reports the number of attached subscriptions for a chat.
func (b *Broker) Subscribers(chatID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[chatID])
}

func (b *Broker) snapshot(chatID string) ([]models.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	msgs, err := b.messageRepo.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	sortByTimestamp(msgs)
	return msgs, nil
}

func (b *Broker) remove(sub *subscription) {
	sub.state.Store(StateUnsubscribed)

	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.rooms[sub.chatID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.rooms, sub.chatID)
		}
	}
}

// sortByTimestamp re-sorts the full set on every delivery. The sort is
// stable: messages sharing a timestamp keep the order the store returned,
// no tie-break is invented.
func sortByTimestamp(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
