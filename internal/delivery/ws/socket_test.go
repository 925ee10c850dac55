package ws

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// fakeSocket records everything written to it. Inbound frames are fed through push.
type fakeSocket struct {
	mu        sync.Mutex
	writes    [][]byte
	closeCode int
	closed    bool

	failWrites atomic.Bool
	inbound    chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-s.inbound:
		return websocket.TextMessage, data, nil
	case <-s.done:
		return 0, nil, io.EOF
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	if s.failWrites.Load() {
		return errors.New("broken pipe")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return websocket.ErrCloseSent
	}
	s.writes = append(s.writes, append([]byte(nil), data...))
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, data []byte, _ time.Time) error {
	if messageType != websocket.CloseMessage {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeCode == 0 && len(data) >= 2 {
		s.closeCode = int(binary.BigEndian.Uint16(data[:2]))
	}
	return nil
}

func (s *fakeSocket) SetReadLimit(int64)                {}
func (s *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (s *fakeSocket) SetWriteDeadline(time.Time) error  { return nil }
func (s *fakeSocket) SetPongHandler(func(string) error) {}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// push queues an inbound text frame
func (s *fakeSocket) push(frame string) {
	s.inbound <- []byte(frame)
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSocket) code() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

type sentFrame struct {
	Type domain.MessageType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

func (s *fakeSocket) frames(t *testing.T) []sentFrame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]sentFrame, 0, len(s.writes))
	for _, w := range s.writes {
		var f sentFrame
		require.NoError(t, json.Unmarshal(w, &f))
		out = append(out, f)
	}
	return out
}

func (s *fakeSocket) types(t *testing.T) []domain.MessageType {
	t.Helper()
	var out []domain.MessageType
	for _, f := range s.frames(t) {
		out = append(out, f.Type)
	}
	return out
}

// last returns the newest frame of type typ
func (s *fakeSocket) last(t *testing.T, typ domain.MessageType) (sentFrame, bool) {
	t.Helper()
	frames := s.frames(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Type == typ {
			return frames[i], true
		}
	}
	return sentFrame{}, false
}

func (s *fakeSocket) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = nil
}

var (
	testTaskRoom  = domain.RoomID{Kind: domain.RoomKindTask, ID: "42"}
	workspaceRoom = domain.RoomID{Kind: domain.RoomKindWorkspace, ID: "7"}
	ana           = domain.NewUser("u1", "Ana")
	ben           = domain.NewUser("u2", "Ben")
	cid           = domain.NewUser("u3", "Cid")
)

func newTestState(t *testing.T) *CollaborationState {
	t.Helper()
	return NewCollaborationState(DefaultOptions(), nil, nil, nil)
}

// join activates a handler for user in room on a fresh fake socket
func join(t *testing.T, state *CollaborationState, user domain.User, room domain.RoomID) (*ConnectionHandler, *fakeSocket) {
	t.Helper()
	sock := newFakeSocket()
	h := newConnectionHandler(state, NewConnection(sock, user, room))
	require.True(t, h.markAuthenticated())
	require.NoError(t, h.activate())
	return h, sock
}
