package live

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quest-chat-service/internal/mocks"
	"quest-chat-service/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func messageAt(id string, ts time.Time) models.Message {
	return models.Message{ID: id, ChatID: "c1", SenderID: "u1", Content: id, MessageType: models.MessageTypeText, Timestamp: ts}
}

func TestSubscribeDeliversSortedInitialSnapshot(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	base := time.Now()
	// store returns messages unsorted, the broker re-sorts every delivery
	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{
		messageAt("m3", base.Add(2*time.Second)),
		messageAt("m1", base),
		messageAt("m2", base.Add(time.Second)),
	}, nil).Once()

	var got []models.Message
	unsubscribe := broker.Subscribe("c1", func(msgs []models.Message) { got = msgs })
	defer unsubscribe()

	require.Len(t, got, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestNotifyRedeliversFullSet(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	base := time.Now()
	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{messageAt("m1", base)}, nil).Once()

	var deliveries [][]models.Message
	unsubscribe := broker.Subscribe("c1", func(msgs []models.Message) { deliveries = append(deliveries, msgs) })
	defer unsubscribe()

	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{
		messageAt("m1", base),
		messageAt("m2", base.Add(time.Second)),
	}, nil).Once()
	broker.Notify("c1")

	require.Len(t, deliveries, 2)
	assert.Len(t, deliveries[0], 1)
	assert.Len(t, deliveries[1], 2)
	assert.Equal(t, "m2", deliveries[1][1].ID)
}

func TestUnsubscribeStopsDeliveries(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{}, nil)

	count := 0
	unsubscribe := broker.Subscribe("c1", func([]models.Message) { count++ })
	require.Equal(t, 1, count)
	require.Equal(t, 1, broker.Subscribers("c1"))

	unsubscribe()
	assert.Equal(t, 0, broker.Subscribers("c1"))

	broker.Notify("c1")
	assert.Equal(t, 1, count)

	// disposer is idempotent
	unsubscribe()
	assert.Equal(t, 0, broker.Subscribers("c1"))
}

func TestNotifyWithoutSubscribersSkipsStore(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	broker.Notify("c1")
	repo.AssertNotCalled(t, "ListMessages", mock.Anything, mock.Anything)
}

func TestNotifyReachesOnlyMatchingChat(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{}, nil)
	repo.On("ListMessages", mock.Anything, "c2").Return([]models.Message{}, nil)

	c1Count, c2Count := 0, 0
	unsub1 := broker.Subscribe("c1", func([]models.Message) { c1Count++ })
	defer unsub1()
	unsub2 := broker.Subscribe("c2", func([]models.Message) { c2Count++ })
	defer unsub2()

	broker.Notify("c1")
	assert.Equal(t, 2, c1Count)
	assert.Equal(t, 1, c2Count)
}

func TestNotifyDuringInitialSnapshotReachesSubscriber(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	base := time.Now()
	// a send commits while the initial snapshot read is in flight
	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{messageAt("m1", base)}, nil).
		Run(func(mock.Arguments) { broker.Notify("c1") }).Once()
	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{
		messageAt("m1", base),
		messageAt("m2", base.Add(time.Second)),
	}, nil).Once()

	var deliveries [][]models.Message
	unsubscribe := broker.Subscribe("c1", func(msgs []models.Message) { deliveries = append(deliveries, msgs) })
	defer unsubscribe()

	require.Len(t, deliveries, 2)
	sawNewMessage := false
	for _, msgs := range deliveries {
		for _, msg := range msgs {
			if msg.ID == "m2" {
				sawNewMessage = true
			}
		}
	}
	assert.True(t, sawNewMessage)
	repo.AssertExpectations(t)
}

func TestSortIsStableForEqualTimestamps(t *testing.T) {
	ts := time.Now()
	msgs := []models.Message{messageAt("first", ts), messageAt("second", ts)}
	sortByTimestamp(msgs)
	assert.Equal(t, "first", msgs[0].ID)
	assert.Equal(t, "second", msgs[1].ID)
}

func TestHistorySortsAscending(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	base := time.Now()
	repo.On("ListMessages", mock.Anything, "c1").Return([]models.Message{
		messageAt("m2", base.Add(time.Second)),
		messageAt("m1", base),
	}, nil).Once()

	msgs, err := broker.History(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestRecentDelegatesWithLimit(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	broker := NewBroker(repo, testLogger())

	base := time.Now()
	repo.On("RecentMessages", mock.Anything, "c1", 2).Return([]models.Message{
		messageAt("m3", base.Add(2*time.Second)),
		messageAt("m2", base.Add(time.Second)),
	}, nil).Once()

	msgs, err := broker.Recent(context.Background(), "c1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].ID)
	repo.AssertExpectations(t)
}
