package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nutrichat/nutrichat/internal/common"
)

// streamState tracks one in-flight streamed message. States expire on their
// own so an abandoned stream does not leak.
type streamState struct {
	MessageID uint64
	LastSeq   int
	Content   string
}

type streamTable struct {
	mu     sync.Mutex
	states *cache.Cache
}

func newStreamTable() *streamTable {
	return &streamTable{
		states: cache.New(10*time.Minute, time.Minute),
	}
}

// HandleStreamMessage ingests one fragment of a streamed AI message.
//
// Fragment 1 creates the message row in "sending". Later fragments append to
// it. A fragment at or below the last applied sequence is a replay and is
// ignored; a fragment that skips ahead is rejected, the sender must resend
// the gap. The final fragment flips the row to "sent" and refreshes the
// session preview. All of this is serialized per stream id.
func (s *Service) HandleStreamMessage(ctx context.Context, sessionID, userID uint64, streamID string, seq int, fragment string, isComplete bool) (*Message, error) {
	if strings.TrimSpace(streamID) == "" {
		return nil, common.ErrValidation("stream id is required")
	}
	if seq < 1 {
		return nil, common.ErrValidation("stream sequence must be positive")
	}

	session, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionEnded {
		return nil, common.ErrNotAllowed("session has ended")
	}

	s.streams.mu.Lock()
	defer s.streams.mu.Unlock()

	var st *streamState
	if v, ok := s.streams.states.Get(streamID); ok {
		st = v.(*streamState)
	}

	if st == nil {
		if seq != 1 {
			return nil, common.ErrExternal(common.CodeStreamOutOfOrder, "stream must start at sequence 1", nil)
		}
		m := &Message{
			UserID:         userID,
			MessageType:    MsgText,
			SenderType:     SenderAI,
			Content:        fragment,
			Status:         StatusSending,
			IsStreaming:    true,
			StreamID:       streamID,
			StreamSequence: seq,
		}
		if err := s.repo.InsertSequenced(ctx, sessionID, m); err != nil {
			return nil, common.ErrInternal(err)
		}
		st = &streamState{MessageID: m.ID, LastSeq: 1, Content: fragment}
		s.streams.states.SetDefault(streamID, st)
		if isComplete {
			return s.completeStream(ctx, sessionID, streamID, st)
		}
		return m, nil
	}

	if seq <= st.LastSeq {
		// replay, already applied
		return s.repo.GetMessage(ctx, st.MessageID)
	}
	if seq > st.LastSeq+1 {
		return nil, common.ErrExternal(common.CodeStreamOutOfOrder, "stream fragment out of order", nil)
	}

	st.Content += fragment
	st.LastSeq = seq
	if err := s.repo.UpdateMessageFields(ctx, st.MessageID, map[string]any{
		"content":         st.Content,
		"stream_sequence": seq,
	}); err != nil {
		return nil, common.ErrInternal(err)
	}
	s.streams.states.SetDefault(streamID, st)

	if isComplete {
		return s.completeStream(ctx, sessionID, streamID, st)
	}
	return s.repo.GetMessage(ctx, st.MessageID)
}

// completeStream finalizes the row and drops the in-memory state. Caller
// holds the stream mutex.
func (s *Service) completeStream(ctx context.Context, sessionID uint64, streamID string, st *streamState) (*Message, error) {
	if err := s.repo.UpdateMessageFields(ctx, st.MessageID, map[string]any{
		"is_stream_end": true,
		"status":        StatusSent,
	}); err != nil {
		return nil, common.ErrInternal(err)
	}
	if err := s.repo.UpdateSessionLastMessage(ctx, sessionID, st.Content, SenderAI); err != nil {
		s.log.WithError(err).Warn("failed to refresh session preview after stream")
	}
	s.streams.states.Delete(streamID)
	return s.repo.GetMessage(ctx, st.MessageID)
}
