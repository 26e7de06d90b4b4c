package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"quest-chat-service/internal/errs"
	"quest-chat-service/internal/mocks"
	"quest-chat-service/internal/models"
)

type messengerMock struct {
	mock.Mock
}

func (m *messengerMock) SendSystemMessage(ctx context.Context, chatID string, actor models.Sender, text string) (models.Message, error) {
	args := m.Called(ctx, chatID, actor, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func TestGetOrCreateForQuestCreatesChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messenger := new(messengerMock)
	lifecycle := NewLifecycle(chatRepo, messenger, testLogger())

	created := memberChat("u1")
	chatRepo.On("GetOrCreateChatForQuest", mock.Anything, "q1", "Night Market Run", "u1").Return(created, true, nil).Once()

	got, wasCreated, err := lifecycle.GetOrCreateForQuest(context.Background(), "q1", "Night Market Run", testCaller())
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "u1", got.CreatedBy)

	messenger.AssertNotCalled(t, "SendSystemMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	chatRepo.AssertExpectations(t)
}

func TestGetOrCreateForQuestJoinsExistingChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messenger := new(messengerMock)
	lifecycle := NewLifecycle(chatRepo, messenger, testLogger())

	existing := memberChat("u2")
	joined := memberChat("u2", "u1")

	chatRepo.On("GetOrCreateChatForQuest", mock.Anything, "q1", "Night Market Run", "u1").Return(existing, false, nil).Once()
	chatRepo.On("AddParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	messenger.On("SendSystemMessage", mock.Anything, "c1", testCaller(), "Alice joined the quest chat").Return(models.Message{ID: "m1"}, nil).Once()
	chatRepo.On("GetChat", mock.Anything, "c1").Return(joined, nil).Once()

	got, wasCreated, err := lifecycle.GetOrCreateForQuest(context.Background(), "q1", "Night Market Run", testCaller())
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.True(t, got.HasParticipant("u1"))
	assert.True(t, got.HasParticipant("u2"))

	chatRepo.AssertExpectations(t)
	messenger.AssertExpectations(t)
}

func TestGetOrCreateForQuestReturnsSameChatForExistingParticipant(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	lifecycle := NewLifecycle(chatRepo, new(messengerMock), testLogger())

	existing := memberChat("u1", "u2")
	chatRepo.On("GetOrCreateChatForQuest", mock.Anything, "q1", "Night Market Run", "u1").Return(existing, false, nil).Twice()

	first, _, err := lifecycle.GetOrCreateForQuest(context.Background(), "q1", "Night Market Run", testCaller())
	require.NoError(t, err)
	second, _, err := lifecycle.GetOrCreateForQuest(context.Background(), "q1", "Night Market Run", testCaller())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	chatRepo.AssertNotCalled(t, "AddParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetOrCreateForQuestValidatesInput(t *testing.T) {
	lifecycle := NewLifecycle(new(mocks.ChatRepositoryMock), new(messengerMock), testLogger())

	_, _, err := lifecycle.GetOrCreateForQuest(context.Background(), "  ", "title", testCaller())
	require.ErrorIs(t, err, errs.ErrValidation)

	_, _, err = lifecycle.GetOrCreateForQuest(context.Background(), "q1", "", testCaller())
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestJoinIsIdempotent(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messenger := new(messengerMock)
	lifecycle := NewLifecycle(chatRepo, messenger, testLogger())

	chat := memberChat("u2", "u1")
	chatRepo.On("AddParticipant", mock.Anything, "c1", "u1").Return(false, nil).Once()
	chatRepo.On("GetChat", mock.Anything, "c1").Return(chat, nil).Once()

	got, err := lifecycle.Join(context.Background(), "c1", testCaller())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, []string(got.Participants))

	// already a member: no system message, no membership event
	messenger.AssertNotCalled(t, "SendSystemMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLeaveBlocksCreator(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messenger := new(messengerMock)
	lifecycle := NewLifecycle(chatRepo, messenger, testLogger())

	chatRepo.On("RemoveParticipant", mock.Anything, "c1", "u1").Return(false, errs.ErrCreatorCannotLeave).Once()

	err := lifecycle.Leave(context.Background(), "c1", testCaller())
	require.ErrorIs(t, err, errs.ErrPolicyViolation)
	messenger.AssertNotCalled(t, "SendSystemMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLeaveSendsSystemMessage(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messenger := new(messengerMock)
	lifecycle := NewLifecycle(chatRepo, messenger, testLogger())

	chatRepo.On("RemoveParticipant", mock.Anything, "c1", "u1").Return(true, nil).Once()
	messenger.On("SendSystemMessage", mock.Anything, "c1", testCaller(), "Alice left the quest chat").Return(models.Message{ID: "m1"}, nil).Once()

	require.NoError(t, lifecycle.Leave(context.Background(), "c1", testCaller()))
	messenger.AssertExpectations(t)
}

func TestLeaveByNonMemberHasNoSideEffects(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messenger := new(messengerMock)
	lifecycle := NewLifecycle(chatRepo, messenger, testLogger())

	// never a participant: the store reports nothing removed
	chatRepo.On("RemoveParticipant", mock.Anything, "c1", "u9").Return(false, nil).Once()

	outsider := models.Sender{ID: "u9", DisplayName: "Mallory"}
	require.NoError(t, lifecycle.Leave(context.Background(), "c1", outsider))

	messenger.AssertNotCalled(t, "SendSystemMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	chatRepo.AssertExpectations(t)
}

func TestSetActiveRequiresMembership(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	lifecycle := NewLifecycle(chatRepo, new(messengerMock), testLogger())

	chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat("u2"), nil).Once()

	err := lifecycle.SetActive(context.Background(), "c1", testCaller(), false)
	require.ErrorIs(t, err, errs.ErrPermissionDenied)
	chatRepo.AssertNotCalled(t, "SetActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestGetEnforcesMembership(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	lifecycle := NewLifecycle(chatRepo, new(messengerMock), testLogger())

	chatRepo.On("GetChat", mock.Anything, "c1").Return(memberChat("u2", "u3"), nil).Once()

	_, err := lifecycle.Get(context.Background(), "c1", testCaller())
	require.ErrorIs(t, err, errs.ErrPermissionDenied)
}

func TestGetNotFound(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	lifecycle := NewLifecycle(chatRepo, new(messengerMock), testLogger())

	chatRepo.On("GetChat", mock.Anything, "missing").Return(models.Chat{}, errs.ErrChatNotFound).Once()

	_, err := lifecycle.Get(context.Background(), "missing", testCaller())
	require.ErrorIs(t, err, errs.ErrNotFound)
}
