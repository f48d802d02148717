package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

type dispatcherFixture struct {
	registry *Registry
	router   *Router
	messages *mocks.MessageRepositoryMock
	groups   *mocks.GroupRepositoryMock

	senderConn *fakeConn
	sender     *Client
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	f := &dispatcherFixture{
		registry:   NewRegistry(),
		messages:   new(mocks.MessageRepositoryMock),
		groups:     new(mocks.GroupRepositoryMock),
		senderConn: newFakeConn(),
	}
	f.router = NewRouter(f.registry)
	f.sender = NewClient(models.User{ID: 1, Username: "alice", Avatar: "a.png"}, f.senderConn)
	f.registry.Register(f.sender)
	go f.sender.WritePump()
	return f
}

// connect registers an extra online user and returns its recording conn.
func (f *dispatcherFixture) connect(userID int) *fakeConn {
	conn := newFakeConn()
	client := NewClient(models.User{ID: userID}, conn)
	f.registry.Register(client)
	go client.WritePump()
	return conn
}

// run feeds the frames to the sender's connection and drives the dispatch
// loop to completion.
func (f *dispatcherFixture) run(frames ...string) {
	for _, frame := range frames {
		f.senderConn.feed(frame)
	}
	f.senderConn.endInput()
	NewDispatcher(f.sender, f.router, f.messages, f.groups).Run(context.Background())
}

func (f *dispatcherFixture) drainAll(t *testing.T, conns ...*fakeConn) {
	t.Helper()
	for _, conn := range conns {
		client, ok := f.clientFor(conn)
		require.True(t, ok)
		drain(t, client)
	}
}

func (f *dispatcherFixture) clientFor(conn *fakeConn) (*Client, bool) {
	for _, c := range f.registry.Snapshot() {
		if c.conn == conn {
			return c, true
		}
	}
	return nil, false
}

func storedMessage(id int, params repositories.AppendParams) models.Message {
	return models.Message{
		ID:         id,
		Content:    params.Content,
		FileURL:    params.FileURL,
		FileType:   params.FileType,
		SenderID:   params.SenderID,
		ReceiverID: params.ReceiverID,
		GroupID:    params.GroupID,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestDispatcherDirectMessageDeliveredToReceiverAndSender(t *testing.T) {
	f := newDispatcherFixture(t)
	receiverConn := f.connect(2)

	receiverID := 2
	params := repositories.AppendParams{SenderID: 1, Content: "hi", ReceiverID: &receiverID}
	f.messages.On("Append", mock.Anything, params).Return(storedMessage(7, params), nil).Once()

	f.run(`{"type":"message","content":"hi","receiver_id":2}`)
	f.drainAll(t, receiverConn)
	drain(t, f.sender)

	for _, conn := range []*fakeConn{receiverConn, f.senderConn} {
		events := conn.eventsOfType(t, models.EventMessage)
		require.Len(t, events, 1)
		require.Equal(t, float64(7), events[0]["id"])
		require.Equal(t, "hi", events[0]["content"])
		require.Equal(t, float64(1), events[0]["sender_id"])
		require.Equal(t, float64(2), events[0]["receiver_id"])
		require.Equal(t, "alice", events[0]["sender"].(map[string]any)["username"])
	}
	f.messages.AssertExpectations(t)
}

func TestDispatcherDirectMessageToOfflineReceiverIsPersistedSilently(t *testing.T) {
	f := newDispatcherFixture(t)

	receiverID := 9
	params := repositories.AppendParams{SenderID: 1, Content: "later", ReceiverID: &receiverID}
	f.messages.On("Append", mock.Anything, params).Return(storedMessage(3, params), nil).Once()

	f.run(`{"type":"message","content":"later","receiver_id":9}`)
	drain(t, f.sender)

	// The sender still gets the echo; no error event for the offline target.
	require.Len(t, f.senderConn.eventsOfType(t, models.EventMessage), 1)
	require.Empty(t, f.senderConn.eventsOfType(t, models.EventError))
	f.messages.AssertExpectations(t)
}

func TestDispatcherGroupMessageFansOutToAllMembers(t *testing.T) {
	f := newDispatcherFixture(t)
	memberConn := f.connect(2)
	otherConn := f.connect(3)
	strangerConn := f.connect(4)

	groupID := 10
	params := repositories.AppendParams{SenderID: 1, Content: "yo", GroupID: &groupID}
	f.messages.On("Append", mock.Anything, params).Return(storedMessage(5, params), nil).Once()
	f.groups.On("MemberIDs", mock.Anything, 10).Return([]int{1, 2, 3}, nil).Once()

	f.run(`{"type":"message","content":"yo","group_id":10}`)
	f.drainAll(t, memberConn, otherConn, strangerConn)
	drain(t, f.sender)

	// All members get the message, the sender included; non-members get nothing.
	require.Len(t, f.senderConn.eventsOfType(t, models.EventMessage), 1)
	memberEvents := memberConn.eventsOfType(t, models.EventMessage)
	require.Len(t, memberEvents, 1)
	require.Equal(t, float64(10), memberEvents[0]["group_id"])
	require.Len(t, otherConn.eventsOfType(t, models.EventMessage), 1)
	require.Empty(t, strangerConn.eventsOfType(t, models.EventMessage))
	f.messages.AssertExpectations(t)
	f.groups.AssertExpectations(t)
}

func TestDispatcherPersistenceFailureReportsAndKeepsConnection(t *testing.T) {
	f := newDispatcherFixture(t)
	receiverConn := f.connect(2)

	receiverID := 2
	failing := repositories.AppendParams{SenderID: 1, Content: "first", ReceiverID: &receiverID}
	f.messages.On("Append", mock.Anything, failing).Return(nil, errors.New("db down")).Once()
	retried := repositories.AppendParams{SenderID: 1, Content: "second", ReceiverID: &receiverID}
	f.messages.On("Append", mock.Anything, retried).Return(storedMessage(8, retried), nil).Once()

	f.run(
		`{"type":"message","content":"first","receiver_id":2}`,
		`{"type":"message","content":"second","receiver_id":2}`,
	)
	f.drainAll(t, receiverConn)
	drain(t, f.sender)

	// The failed send surfaces as an error event to the sender only, and the
	// loop keeps processing: the retry goes through.
	errs := f.senderConn.eventsOfType(t, models.EventError)
	require.Len(t, errs, 1)
	require.Equal(t, "persist_failed", errs[0]["code"])

	require.Empty(t, receiverConn.eventsOfType(t, models.EventError))
	require.Len(t, receiverConn.eventsOfType(t, models.EventMessage), 1)
	f.messages.AssertExpectations(t)
}

func TestDispatcherMalformedFrameTerminatesLoop(t *testing.T) {
	f := newDispatcherFixture(t)
	f.senderConn.feed(`{not json`)
	// Run must return on its own; no endInput needed.
	done := make(chan struct{})
	go func() {
		NewDispatcher(f.sender, f.router, f.messages, f.groups).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not terminate on malformed frame")
	}
	f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestDispatcherUnknownEventTypeTerminatesLoop(t *testing.T) {
	f := newDispatcherFixture(t)
	f.senderConn.feed(`{"type":"subscribe"}`)
	done := make(chan struct{})
	go func() {
		NewDispatcher(f.sender, f.router, f.messages, f.groups).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not terminate on unknown event type")
	}
}

func TestDispatcherAmbiguousTargetNeverReachesStorage(t *testing.T) {
	for name, frame := range map[string]string{
		"both":    `{"type":"message","content":"x","receiver_id":2,"group_id":10}`,
		"neither": `{"type":"message","content":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newDispatcherFixture(t)
			f.run(frame)
			f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
			drain(t, f.sender)
		})
	}
}

func TestDispatcherDirectTypingReachesReceiverOnly(t *testing.T) {
	f := newDispatcherFixture(t)
	receiverConn := f.connect(2)
	bystanderConn := f.connect(3)

	f.run(`{"type":"typing","receiver_id":2}`)
	f.drainAll(t, receiverConn, bystanderConn)
	drain(t, f.sender)

	events := receiverConn.eventsOfType(t, models.EventTyping)
	require.Len(t, events, 1)
	require.Equal(t, float64(1), events[0]["user_id"])
	require.Equal(t, "alice", events[0]["username"])

	require.Empty(t, bystanderConn.eventsOfType(t, models.EventTyping))
	require.Empty(t, f.senderConn.eventsOfType(t, models.EventTyping))
	f.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestDispatcherGroupTypingExcludesSender(t *testing.T) {
	f := newDispatcherFixture(t)
	memberConn := f.connect(2)

	f.groups.On("MemberIDs", mock.Anything, 10).Return([]int{1, 2}, nil).Once()

	f.run(`{"type":"typing","group_id":10}`)
	f.drainAll(t, memberConn)
	drain(t, f.sender)

	require.Len(t, memberConn.eventsOfType(t, models.EventTyping), 1)
	require.Empty(t, f.senderConn.eventsOfType(t, models.EventTyping))
	f.groups.AssertExpectations(t)
}

func TestDispatcherGroupResolutionFailureKeepsConnection(t *testing.T) {
	f := newDispatcherFixture(t)
	receiverID := 2
	receiverConn := f.connect(receiverID)

	groupID := 10
	params := repositories.AppendParams{SenderID: 1, Content: "lost", GroupID: &groupID}
	f.messages.On("Append", mock.Anything, params).Return(storedMessage(4, params), nil).Once()
	f.groups.On("MemberIDs", mock.Anything, 10).Return(nil, errors.New("db down")).Once()
	next := repositories.AppendParams{SenderID: 1, Content: "next", ReceiverID: &receiverID}
	f.messages.On("Append", mock.Anything, next).Return(storedMessage(6, next), nil).Once()

	f.run(
		`{"type":"message","content":"lost","group_id":10}`,
		`{"type":"message","content":"next","receiver_id":2}`,
	)
	f.drainAll(t, receiverConn)
	drain(t, f.sender)

	// Fan-out for the group message is dropped, but the message was stored
	// and the loop continues with the next frame.
	require.Len(t, receiverConn.eventsOfType(t, models.EventMessage), 1)
	f.messages.AssertExpectations(t)
}
