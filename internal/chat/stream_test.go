package chat

import (
	"context"
	"testing"

	"github.com/nutrichat/nutrichat/internal/common"
)

func TestStreamInOrderFragments(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	m, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "stream-1", 1, "Try a ", false)
	if err != nil {
		t.Fatalf("fragment 1: %v", err)
	}
	if m.Status != StatusSending || !m.IsStreaming {
		t.Fatalf("status=%d streaming=%v", m.Status, m.IsStreaming)
	}
	if m.SequenceNumber != 1 {
		t.Fatalf("sequence = %d", m.SequenceNumber)
	}

	if _, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "stream-1", 2, "spinach ", false); err != nil {
		t.Fatalf("fragment 2: %v", err)
	}
	m, err = svc.HandleStreamMessage(ctx, sess.ID, 1, "stream-1", 3, "omelette", true)
	if err != nil {
		t.Fatalf("fragment 3: %v", err)
	}

	if m.Content != "Try a spinach omelette" {
		t.Fatalf("content = %q", m.Content)
	}
	if m.Status != StatusSent || !m.IsStreamEnd {
		t.Fatalf("status=%d stream_end=%v", m.Status, m.IsStreamEnd)
	}

	got, _ := svc.repo.GetSession(ctx, sess.ID)
	if got.LastMessage != "Try a spinach omelette" {
		t.Fatalf("session preview = %q", got.LastMessage)
	}
	if got.MessageCount != 1 {
		t.Fatalf("message count = %d, want 1 (one streamed message)", got.MessageCount)
	}
}

func TestStreamReplayIsIgnored(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	if _, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 1, "ab", false); err != nil {
		t.Fatalf("fragment 1: %v", err)
	}
	if _, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 2, "cd", false); err != nil {
		t.Fatalf("fragment 2: %v", err)
	}

	// a duplicated fragment must not append twice
	m, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 2, "cd", false)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if m.Content != "abcd" {
		t.Fatalf("content after replay = %q", m.Content)
	}
}

func TestStreamOutOfOrderRejected(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	// first fragment must be sequence 1
	_, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 2, "late start", false)
	expectCode(t, err, common.CodeStreamOutOfOrder)

	if _, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 1, "ab", false); err != nil {
		t.Fatalf("fragment 1: %v", err)
	}

	// skipping ahead is rejected, nothing is applied
	_, err = svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 3, "zz", false)
	expectCode(t, err, common.CodeStreamOutOfOrder)

	m, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 2, "cd", true)
	if err != nil {
		t.Fatalf("fragment 2: %v", err)
	}
	if m.Content != "abcd" {
		t.Fatalf("content = %q", m.Content)
	}
}

func TestStreamSingleFragmentComplete(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	m, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "one-shot", 1, "whole answer", true)
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if m.Status != StatusSent || !m.IsStreamEnd || m.Content != "whole answer" {
		t.Fatalf("status=%d end=%v content=%q", m.Status, m.IsStreamEnd, m.Content)
	}

	// the stream id is released once complete; a new stream may not reuse
	// arbitrary sequence numbers
	_, err = svc.HandleStreamMessage(ctx, sess.ID, 1, "one-shot", 2, "more", false)
	expectCode(t, err, common.CodeStreamOutOfOrder)
}

func TestStreamValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	_, err := svc.HandleStreamMessage(ctx, sess.ID, 1, "", 1, "x", false)
	expectCode(t, err, common.CodeValidation)

	_, err = svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 0, "x", false)
	expectCode(t, err, common.CodeValidation)

	if err := svc.UpdateSessionStatus(ctx, sess.ID, 1, SessionEnded); err != nil {
		t.Fatalf("end session: %v", err)
	}
	_, err = svc.HandleStreamMessage(ctx, sess.ID, 1, "s", 1, "x", false)
	expectCode(t, err, common.CodeOperationNotAllowed)
}
