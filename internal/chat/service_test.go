package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/dify"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the in-memory database private to the test and
	// serializes concurrent writes
	sqlDB.SetMaxOpenConns(1)

	if err := gdb.AutoMigrate(&Session{}, &Message{}, &ReplyJob{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []string
	answer string
	convID string
	err    error
}

func (f *fakeGateway) SendChatMessage(_ context.Context, message, conversationID, _ string) (*dify.ChatReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, message)
	if f.err != nil {
		return nil, f.err
	}
	convID := f.convID
	if convID == "" {
		convID = conversationID
	}
	return &dify.ChatReply{
		Answer:         f.answer,
		ConversationID: convID,
		MessageID:      "dify-msg-1",
		Mode:           "chat",
	}, nil
}

func newTestService(t *testing.T, gw *fakeGateway) *Service {
	t.Helper()
	if gw == nil {
		gw = &fakeGateway{answer: "ok"}
	}
	return NewService(NewRepo(openTestDB(t)), gw, nil)
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", code)
	}
	ae, ok := common.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if ae.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, ae.Code, ae.Message)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, 1, "Breakfast ideas", TypeRecipeRecommendation, "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.SendMessage(ctx, sess.ID, 1, "   ", MsgText, "", ""); err == nil {
		t.Fatal("blank content accepted")
	} else {
		expectCode(t, err, common.CodeValidation)
	}

	long := strings.Repeat("x", maxContentRunes+1)
	_, err = svc.SendMessage(ctx, sess.ID, 1, long, MsgText, "", "")
	expectCode(t, err, common.CodeMessageTooLong)

	// exactly at the limit is fine
	if _, err := svc.SendMessage(ctx, sess.ID, 1, strings.Repeat("x", maxContentRunes), MsgText, "", ""); err != nil {
		t.Fatalf("limit-length content rejected: %v", err)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.SendMessage(context.Background(), 999, 1, "hello", MsgText, "", "")
	expectCode(t, err, common.CodeSessionNotFound)
}

func TestSendMessageOtherUsersSessionHidden(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, 1, "mine", TypeOther, "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	_, err = svc.SendMessage(ctx, sess.ID, 2, "hello", MsgText, "", "")
	expectCode(t, err, common.CodeSessionNotFound)
}

func TestConverse(t *testing.T) {
	gw := &fakeGateway{answer: "Try a spinach omelette", convID: "conv-abc"}
	svc := newTestService(t, gw)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, 1, "Breakfast ideas", TypeRecipeRecommendation, "", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	userMsg, reply, err := svc.Converse(ctx, sess.ID, 1, "What should I eat for breakfast?", MsgText, "", "")
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	if userMsg.SequenceNumber != 1 {
		t.Fatalf("user message sequence = %d, want 1", userMsg.SequenceNumber)
	}
	if reply.SequenceNumber != 2 {
		t.Fatalf("reply sequence = %d, want 2", reply.SequenceNumber)
	}
	if reply.SenderType != SenderAI || reply.Status != StatusSent {
		t.Fatalf("reply sender=%d status=%d", reply.SenderType, reply.Status)
	}
	if reply.ParentMessageID == nil || *reply.ParentMessageID != userMsg.ID {
		t.Fatal("reply not linked to user message")
	}

	got, err := svc.repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if got.MessageCount != 2 {
		t.Fatalf("message count = %d, want 2", got.MessageCount)
	}
	if got.LastMessage != "Try a spinach omelette" {
		t.Fatalf("last message = %q", got.LastMessage)
	}
	if got.LastMessageSender != SenderAI {
		t.Fatalf("last sender = %d, want AI", got.LastMessageSender)
	}
	if got.DifyConversationID != "conv-abc" {
		t.Fatalf("conversation id = %q", got.DifyConversationID)
	}
}

func TestConverseGatewayFailureKeepsUserMessage(t *testing.T) {
	gw := &fakeGateway{err: common.ErrExternal(common.CodeAIGatewayTimeout, "ai gateway timed out", nil)}
	svc := newTestService(t, gw)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	userMsg, reply, err := svc.Converse(ctx, sess.ID, 1, "hello", MsgText, "", "")
	expectCode(t, err, common.CodeAIGatewayTimeout)
	if reply != nil {
		t.Fatal("reply returned despite gateway failure")
	}
	if userMsg == nil || userMsg.Status != StatusSent {
		t.Fatal("user message not persisted as sent")
	}

	msgs, total, err := svc.ListMessages(ctx, sess.ID, 1, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(msgs) != 1 {
		t.Fatalf("expected the lone user message, got %d", total)
	}
}

func TestEndedSessionBlocksSends(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	if err := svc.UpdateSessionStatus(ctx, sess.ID, 1, SessionEnded); err != nil {
		t.Fatalf("end session: %v", err)
	}
	_, err := svc.SendMessage(ctx, sess.ID, 1, "hello", MsgText, "", "")
	expectCode(t, err, common.CodeOperationNotAllowed)
}

func TestSessionStatusTransitions(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	if err := svc.UpdateSessionStatus(ctx, sess.ID, 1, SessionPaused); err != nil {
		t.Fatalf("active -> paused: %v", err)
	}
	if err := svc.UpdateSessionStatus(ctx, sess.ID, 1, SessionActive); err != nil {
		t.Fatalf("paused -> active: %v", err)
	}
	if err := svc.UpdateSessionStatus(ctx, sess.ID, 1, SessionEnded); err != nil {
		t.Fatalf("active -> ended: %v", err)
	}

	// ended is terminal
	err := svc.UpdateSessionStatus(ctx, sess.ID, 1, SessionActive)
	expectCode(t, err, common.CodeOperationNotAllowed)
}

func TestMessageReadAndRecall(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	m1, err := svc.SendMessage(ctx, sess.ID, 1, "first", MsgText, "", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	m2, err := svc.SendMessage(ctx, sess.ID, 1, "second", MsgText, "", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.MarkMessageAsRead(ctx, m1.ID, 1); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got, _ := svc.repo.GetMessage(ctx, m1.ID)
	if got.Status != StatusRead || got.ReadTime == nil {
		t.Fatalf("status=%d read_time=%v", got.Status, got.ReadTime)
	}

	// a read message can no longer be recalled
	err = svc.RecallMessage(ctx, m1.ID, 1)
	expectCode(t, err, common.CodeOperationNotAllowed)

	if err := svc.RecallMessage(ctx, m2.ID, 1); err != nil {
		t.Fatalf("recall: %v", err)
	}
	got, _ = svc.repo.GetMessage(ctx, m2.ID)
	if got.Status != StatusRecalled || got.RecallTime == nil {
		t.Fatalf("status=%d recall_time=%v", got.Status, got.RecallTime)
	}
	// the row is retained and its sequence number stays occupied
	if got.SequenceNumber != 2 {
		t.Fatalf("sequence after recall = %d", got.SequenceNumber)
	}

	// recall is terminal
	err = svc.RecallMessage(ctx, m2.ID, 1)
	expectCode(t, err, common.CodeOperationNotAllowed)
	err = svc.MarkMessageAsRead(ctx, m2.ID, 1)
	expectCode(t, err, common.CodeOperationNotAllowed)
}

func TestMessageOwnershipForbidden(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	m, _ := svc.SendMessage(ctx, sess.ID, 1, "hello", MsgText, "", "")

	err := svc.MarkMessageAsRead(ctx, m.ID, 2)
	expectCode(t, err, common.CodeForbidden)
}

func TestRetryFailedMessage(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	m, _ := svc.SendMessage(ctx, sess.ID, 1, "hello", MsgText, "", "")

	// sent messages cannot be retried
	err := svc.RetryMessage(ctx, m.ID, 1)
	expectCode(t, err, common.CodeOperationNotAllowed)

	if err := svc.repo.UpdateMessageFields(ctx, m.ID, map[string]any{"status": StatusFailed, "error_message": "gateway down"}); err != nil {
		t.Fatalf("force failed: %v", err)
	}
	if err := svc.RetryMessage(ctx, m.ID, 1); err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, _ := svc.repo.GetMessage(ctx, m.ID)
	if got.Status != StatusSending {
		t.Fatalf("status = %d, want sending", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
}

func TestRateMessage(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	m, _ := svc.SendMessage(ctx, sess.ID, 1, "hello", MsgText, "", "")

	err := svc.RateMessage(ctx, m.ID, 1, 6, "")
	expectCode(t, err, common.CodeValidation)

	if err := svc.RateMessage(ctx, m.ID, 1, 4, "helpful"); err != nil {
		t.Fatalf("rate: %v", err)
	}
	got, _ := svc.repo.GetMessage(ctx, m.ID)
	if got.Rating != 4 || got.Feedback != "helpful" {
		t.Fatalf("rating=%d feedback=%q", got.Rating, got.Feedback)
	}
}

func TestConcurrentSendsGetDistinctSequences(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.SendMessage(ctx, sess.ID, 1, "concurrent", MsgText, "", ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent send: %v", err)
	}

	msgs, total, err := svc.ListMessages(ctx, sess.ID, 1, 1, n)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != n {
		t.Fatalf("total = %d, want %d", total, n)
	}
	seen := map[int]bool{}
	for _, m := range msgs {
		if seen[m.SequenceNumber] {
			t.Fatalf("duplicate sequence %d", m.SequenceNumber)
		}
		seen[m.SequenceNumber] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("gap: sequence %d missing", i)
		}
	}

	got, _ := svc.repo.GetSession(ctx, sess.ID)
	if got.MessageCount != n {
		t.Fatalf("message count = %d, want %d", got.MessageCount, n)
	}
}

func TestListSessionsPinnedFirst(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, 1, "old", TypeOther, "", "")
	if _, err := svc.SendMessage(ctx, a.ID, 1, "in a", MsgText, "", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	b, _ := svc.CreateSession(ctx, 1, "new", TypeOther, "", "")
	if _, err := svc.SendMessage(ctx, b.ID, 1, "in b", MsgText, "", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.SetSessionPinned(ctx, a.ID, 1, true); err != nil {
		t.Fatalf("pin: %v", err)
	}

	sessions, _, err := svc.ListSessions(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	if sessions[0].ID != a.ID {
		t.Fatal("pinned session not first")
	}
}

func TestSearchSessions(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, _ := svc.CreateSession(ctx, 1, "Breakfast ideas", TypeOther, "", "")
	svc.CreateSession(ctx, 1, "Dinner plans", TypeOther, "", "")

	if _, _, err := svc.SearchSessions(ctx, 1, "", 1, 10); err == nil {
		t.Fatal("empty keyword accepted")
	}

	found, total, err := svc.SearchSessions(ctx, 1, "Breakfast", 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || found[0].ID != a.ID {
		t.Fatalf("search returned %d results", total)
	}
}

func TestUnreadCountAndBatchRead(t *testing.T) {
	gw := &fakeGateway{answer: "a reply"}
	svc := newTestService(t, gw)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	if _, _, err := svc.Converse(ctx, sess.ID, 1, "hi", MsgText, "", ""); err != nil {
		t.Fatalf("converse: %v", err)
	}

	n, err := svc.CountUnread(ctx, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("unread = %d, want 1 (the AI reply)", n)
	}

	marked, err := svc.BatchMarkMessagesAsRead(ctx, sess.ID, 1)
	if err != nil {
		t.Fatalf("batch read: %v", err)
	}
	if marked != 1 {
		t.Fatalf("marked = %d, want 1", marked)
	}

	n, _ = svc.CountUnread(ctx, 1)
	if n != 0 {
		t.Fatalf("unread after batch = %d", n)
	}
}

func TestDeleteSessionHidesIt(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	if err := svc.DeleteSession(ctx, sess.ID, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := svc.SendMessage(ctx, sess.ID, 1, "hello", MsgText, "", "")
	expectCode(t, err, common.CodeSessionNotFound)

	sessions, total, _ := svc.ListSessions(ctx, 1, 1, 10)
	if total != 0 || len(sessions) != 0 {
		t.Fatal("deleted session still listed")
	}
}

func TestReplyJobIdempotency(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	m, _ := svc.SendMessage(ctx, sess.ID, 1, "hello", MsgText, "", "")

	key := "client-key-1"
	j1 := &ReplyJob{ID: "01HTESTJOB0000000000000001", UserID: 1, SessionID: sess.ID, UserMessageID: m.ID, Prompt: "hello", IdempotencyKey: &key, Status: JobQueued}
	created1, isNew1, err := svc.CreateReplyJobOrGetExisting(ctx, j1)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if !isNew1 {
		t.Fatal("first job not reported as new")
	}

	j2 := &ReplyJob{ID: "01HTESTJOB0000000000000002", UserID: 1, SessionID: sess.ID, UserMessageID: m.ID, Prompt: "hello", IdempotencyKey: &key, Status: JobQueued}
	created2, isNew2, err := svc.CreateReplyJobOrGetExisting(ctx, j2)
	if err != nil {
		t.Fatalf("resubmit job: %v", err)
	}
	if isNew2 {
		t.Fatal("duplicate key created a second job")
	}
	if created2.ID != created1.ID {
		t.Fatalf("resubmit returned %s, want %s", created2.ID, created1.ID)
	}
}

func TestReplyJobIdempotencyScopedPerUser(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sessA, _ := svc.CreateSession(ctx, 1, "a", TypeOther, "", "")
	mA, _ := svc.SendMessage(ctx, sessA.ID, 1, "hello", MsgText, "", "")
	sessB, _ := svc.CreateSession(ctx, 2, "b", TypeOther, "", "")
	mB, _ := svc.SendMessage(ctx, sessB.ID, 2, "hello", MsgText, "", "")

	keyA := "shared-key"
	jA := &ReplyJob{ID: "01HTESTJOB0000000000000011", UserID: 1, SessionID: sessA.ID, UserMessageID: mA.ID, Prompt: "hello", IdempotencyKey: &keyA, Status: JobQueued}
	createdA, isNewA, err := svc.CreateReplyJobOrGetExisting(ctx, jA)
	if err != nil {
		t.Fatalf("user A create job: %v", err)
	}
	if !isNewA {
		t.Fatal("user A job not reported as new")
	}

	// Same key from a different user must create an independent job.
	keyB := "shared-key"
	jB := &ReplyJob{ID: "01HTESTJOB0000000000000012", UserID: 2, SessionID: sessB.ID, UserMessageID: mB.ID, Prompt: "hello", IdempotencyKey: &keyB, Status: JobQueued}
	createdB, isNewB, err := svc.CreateReplyJobOrGetExisting(ctx, jB)
	if err != nil {
		t.Fatalf("user B create job: %v", err)
	}
	if !isNewB {
		t.Fatal("user B job not reported as new")
	}
	if createdB.ID == createdA.ID {
		t.Fatal("users sharing an idempotency key got the same job")
	}
	if createdB.UserID != 2 {
		t.Fatalf("user B job owned by %d", createdB.UserID)
	}
}

func TestGenerateReply(t *testing.T) {
	gw := &fakeGateway{answer: "generated", convID: "conv-xyz"}
	svc := newTestService(t, gw)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, 1, "t", TypeOther, "", "")
	m, _ := svc.SendMessage(ctx, sess.ID, 1, "prompt text", MsgText, "", "")

	job := &ReplyJob{ID: "01HTESTJOB0000000000000003", UserID: 1, SessionID: sess.ID, UserMessageID: m.ID, Prompt: "prompt text", Status: JobQueued}
	if err := svc.CreateReplyJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	reply, err := svc.GenerateReply(ctx, job)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply.Content != "generated" || reply.SenderType != SenderAI {
		t.Fatalf("reply content=%q sender=%d", reply.Content, reply.SenderType)
	}
	if reply.ParentMessageID == nil || *reply.ParentMessageID != m.ID {
		t.Fatal("reply not linked to user message")
	}

	got, _ := svc.repo.GetSession(ctx, sess.ID)
	if got.DifyConversationID != "conv-xyz" {
		t.Fatalf("conversation id = %q", got.DifyConversationID)
	}
}
