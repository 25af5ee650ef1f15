package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/dify"
)

// Gateway is the outbound AI conversation API used for chat turns.
type Gateway interface {
	SendChatMessage(ctx context.Context, message, conversationID, userTag string) (*dify.ChatReply, error)
}

// Service owns the conversation lifecycle: session creation, message
// sequencing, last-message bookkeeping and streaming-fragment accumulation.
// Every operation takes the authenticated user id explicitly.
type Service struct {
	repo    *Repo
	gateway Gateway
	streams *streamTable
	log     *logrus.Logger
}

func NewService(repo *Repo, gateway Gateway, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		repo:    repo,
		gateway: gateway,
		streams: newStreamTable(),
		log:     log,
	}
}

func userTag(userID uint64) string { return fmt.Sprintf("user-%d", userID) }

func validSessionType(t int) bool {
	return t >= TypeRecipeRecommendation && t <= TypeOther
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return common.ErrValidation("message content is required")
	}
	if len([]rune(content)) > maxContentRunes {
		return common.ErrTooLong(fmt.Sprintf("message content exceeds %d characters", maxContentRunes))
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

// CreateSession starts a new conversation for the user.
func (s *Service) CreateSession(ctx context.Context, userID uint64, title string, sessionType int, clientIP, userAgent string) (*Session, error) {
	if len([]rune(title)) > 100 {
		return nil, common.ErrValidation("session title exceeds 100 characters")
	}
	if sessionType == 0 {
		sessionType = TypeOther
	}
	if !validSessionType(sessionType) {
		return nil, common.ErrValidation("unknown session type")
	}

	session := &Session{
		UserID:        userID,
		Title:         title,
		DifySessionID: uuid.NewString(),
		SessionType:   sessionType,
		Status:        SessionActive,
		MessageCount:  0,
		ClientIP:      clientIP,
		UserAgent:     truncateRunes(userAgent, 500),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, common.ErrInternal(err)
	}
	return session, nil
}

func (s *Service) ownedSession(ctx context.Context, sessionID, userID uint64) (*Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeSessionNotFound, "session not found")
		}
		return nil, common.ErrInternal(err)
	}
	if session.UserID != userID {
		// hide existence
		return nil, common.ErrNotFound(common.CodeSessionNotFound, "session not found")
	}
	return session, nil
}

func (s *Service) ownedMessage(ctx context.Context, messageID, userID uint64) (*Message, error) {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeMessageNotFound, "message not found")
		}
		return nil, common.ErrInternal(err)
	}
	if m.UserID != userID {
		return nil, common.ErrForbidden("message does not belong to user")
	}
	return m, nil
}

// SendMessage validates and persists a user-authored message. Sequence
// assignment and session bookkeeping happen in one atomic step.
func (s *Service) SendMessage(ctx context.Context, sessionID, userID uint64, content string, messageType int, attachments, metadata string) (*Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if messageType == 0 {
		messageType = MsgText
	}

	session, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status == SessionEnded {
		return nil, common.ErrNotAllowed("session has ended")
	}

	m := &Message{
		UserID:      userID,
		MessageType: messageType,
		SenderType:  SenderUser,
		Content:     content,
		Attachments: attachments,
		Metadata:    metadata,
		Status:      StatusSent,
	}
	if err := s.repo.InsertSequenced(ctx, sessionID, m); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeSessionNotFound, "session not found")
		}
		return nil, common.ErrInternal(err)
	}
	return m, nil
}

// SendAiReply records an AI-authored message linked to the triggering user
// message. Inbound replies are created directly in "sent".
func (s *Service) SendAiReply(ctx context.Context, sessionID, userMessageID uint64, content, difyMessageID, metadata string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, common.ErrValidation("reply content is required")
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeSessionNotFound, "session not found")
		}
		return nil, common.ErrInternal(err)
	}

	var parent *uint64
	if userMessageID != 0 {
		parent = &userMessageID
	}

	m := &Message{
		UserID:          session.UserID,
		DifyMessageID:   difyMessageID,
		ParentMessageID: parent,
		MessageType:     MsgText,
		SenderType:      SenderAI,
		Content:         content,
		Metadata:        metadata,
		Status:          StatusSent,
	}
	if err := s.repo.InsertSequenced(ctx, session.ID, m); err != nil {
		return nil, common.ErrInternal(err)
	}
	return m, nil
}

// Converse runs one full chat turn: persist the user message, call the
// gateway (no DB locks held during the call), persist the reply. On gateway
// failure the user message stays "sent" with no reply and the caller may
// retry the turn.
func (s *Service) Converse(ctx context.Context, sessionID, userID uint64, content string, messageType int, attachments, metadata string) (userMsg, reply *Message, err error) {
	userMsg, err = s.SendMessage(ctx, sessionID, userID, content, messageType, attachments, metadata)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return userMsg, nil, common.ErrInternal(err)
	}

	start := time.Now()
	answer, gwErr := s.gateway.SendChatMessage(ctx, content, session.DifyConversationID, userTag(userID))
	if gwErr != nil {
		s.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"cost":       time.Since(start),
		}).WithError(gwErr).Warn("ai gateway call failed")
		return userMsg, nil, gwErr
	}

	if answer.ConversationID != "" && answer.ConversationID != session.DifyConversationID {
		if err := s.repo.SetDifyConversationID(ctx, sessionID, answer.ConversationID); err != nil {
			s.log.WithError(err).Warn("failed to record conversation id")
		}
	}

	reply, err = s.SendAiReply(ctx, sessionID, userMsg.ID, answer.Answer, answer.MessageID, metadataJSON(answer))
	if err != nil {
		return userMsg, nil, err
	}
	return userMsg, reply, nil
}

func metadataJSON(r *dify.ChatReply) string {
	if r.Mode == "" {
		return ""
	}
	return fmt.Sprintf(`{"mode":%q}`, r.Mode)
}

// GenerateReply produces the assistant reply for a queued job. Called from
// the worker, never from a request goroutine.
func (s *Service) GenerateReply(ctx context.Context, job *ReplyJob) (*Message, error) {
	session, err := s.ownedSession(ctx, job.SessionID, job.UserID)
	if err != nil {
		return nil, err
	}

	answer, err := s.gateway.SendChatMessage(ctx, job.Prompt, session.DifyConversationID, userTag(job.UserID))
	if err != nil {
		return nil, err
	}
	if answer.ConversationID != "" && answer.ConversationID != session.DifyConversationID {
		_ = s.repo.SetDifyConversationID(ctx, session.ID, answer.ConversationID)
	}
	return s.SendAiReply(ctx, session.ID, job.UserMessageID, answer.Answer, answer.MessageID, metadataJSON(answer))
}

// transitionMessage applies a guarded state change. Zero rows affected is
// disambiguated into "illegal transition" vs "concurrent update".
func (s *Service) transitionMessage(ctx context.Context, m *Message, from []int, updates map[string]any, denyMsg string) error {
	rows, err := s.repo.UpdateMessageGuarded(ctx, m.ID, m.Version, from, updates)
	if err != nil {
		return common.ErrInternal(err)
	}
	if rows == 0 {
		cur, err := s.repo.GetMessage(ctx, m.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound(common.CodeMessageNotFound, "message not found")
			}
			return common.ErrInternal(err)
		}
		for _, st := range from {
			if cur.Status == st {
				return common.ErrConflict("message was modified concurrently")
			}
		}
		return common.ErrNotAllowed(denyMsg)
	}
	return nil
}

// MarkMessageAsRead transitions sent → read.
func (s *Service) MarkMessageAsRead(ctx context.Context, messageID, userID uint64) error {
	m, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	return s.transitionMessage(ctx, m, []int{StatusSent}, map[string]any{
		"status":    StatusRead,
		"read_time": time.Now(),
	}, "only sent messages can be marked read")
}

// RecallMessage transitions sent → recalled. The row is retained.
func (s *Service) RecallMessage(ctx context.Context, messageID, userID uint64) error {
	m, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	return s.transitionMessage(ctx, m, []int{StatusSent}, map[string]any{
		"status":      StatusRecalled,
		"recall_time": time.Now(),
	}, "only sent messages can be recalled")
}

// RetryMessage re-enters sending from failed, counting the attempt.
func (s *Service) RetryMessage(ctx context.Context, messageID, userID uint64) error {
	m, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	return s.transitionMessage(ctx, m, []int{StatusFailed}, map[string]any{
		"status":      StatusSending,
		"retry_count": gorm.Expr("retry_count + 1"),
	}, "only failed messages can be retried")
}

// RateMessage stores the user's rating for a message.
func (s *Service) RateMessage(ctx context.Context, messageID, userID uint64, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return common.ErrValidation("rating must be between 1 and 5")
	}
	m, err := s.ownedMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if m.Status == StatusRecalled {
		return common.ErrNotAllowed("recalled messages cannot be rated")
	}
	rows, err := s.repo.UpdateMessageGuarded(ctx, m.ID, m.Version, nil, map[string]any{
		"rating":   rating,
		"feedback": truncateRunes(feedback, 500),
	})
	if err != nil {
		return common.ErrInternal(err)
	}
	if rows == 0 {
		return common.ErrConflict("message was modified concurrently")
	}
	return nil
}

// ListMessages pages the session's messages in sequence order.
func (s *Service) ListMessages(ctx context.Context, sessionID, userID uint64, page, size int) ([]Message, int64, error) {
	if _, err := s.ownedSession(ctx, sessionID, userID); err != nil {
		return nil, 0, err
	}
	page, size = normalizePage(page, size)
	msgs, total, err := s.repo.ListMessages(ctx, sessionID, page, size)
	if err != nil {
		return nil, 0, common.ErrInternal(err)
	}
	return msgs, total, nil
}

func (s *Service) ListSessions(ctx context.Context, userID uint64, page, size int) ([]Session, int64, error) {
	page, size = normalizePage(page, size)
	sessions, total, err := s.repo.ListSessions(ctx, userID, page, size)
	if err != nil {
		return nil, 0, common.ErrInternal(err)
	}
	return sessions, total, nil
}

func (s *Service) SearchSessions(ctx context.Context, userID uint64, keyword string, page, size int) ([]Session, int64, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, 0, common.ErrValidation("search keyword is required")
	}
	page, size = normalizePage(page, size)
	sessions, total, err := s.repo.SearchSessions(ctx, userID, keyword, page, size)
	if err != nil {
		return nil, 0, common.ErrInternal(err)
	}
	return sessions, total, nil
}

var sessionTransitions = map[int][]int{
	SessionActive: {SessionPaused, SessionEnded},
	SessionPaused: {SessionActive, SessionEnded},
}

// UpdateSessionStatus moves the session through active ↔ paused → ended.
// Ended is terminal.
func (s *Service) UpdateSessionStatus(ctx context.Context, sessionID, userID uint64, status int) error {
	if status < SessionActive || status > SessionPaused {
		return common.ErrValidation("unknown session status")
	}
	session, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	allowed := false
	for _, to := range sessionTransitions[session.Status] {
		if to == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return common.ErrNotAllowed("illegal session status transition")
	}

	rows, err := s.repo.UpdateSessionGuarded(ctx, session.ID, session.Version, map[string]any{"status": status})
	if err != nil {
		return common.ErrInternal(err)
	}
	if rows == 0 {
		return common.ErrConflict("session was modified concurrently")
	}
	return nil
}

func (s *Service) SetSessionPinned(ctx context.Context, sessionID, userID uint64, pinned bool) error {
	session, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	rows, err := s.repo.UpdateSessionGuarded(ctx, session.ID, session.Version, map[string]any{"is_pinned": pinned})
	if err != nil {
		return common.ErrInternal(err)
	}
	if rows == 0 {
		return common.ErrConflict("session was modified concurrently")
	}
	return nil
}

func (s *Service) RateSession(ctx context.Context, sessionID, userID uint64, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return common.ErrValidation("rating must be between 1 and 5")
	}
	session, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	rows, err := s.repo.UpdateSessionGuarded(ctx, session.ID, session.Version, map[string]any{
		"rating":   rating,
		"feedback": truncateRunes(feedback, 500),
	})
	if err != nil {
		return common.ErrInternal(err)
	}
	if rows == 0 {
		return common.ErrConflict("session was modified concurrently")
	}
	return nil
}

// DeleteSession soft-deletes the session. Messages are retained.
func (s *Service) DeleteSession(ctx context.Context, sessionID, userID uint64) error {
	session, err := s.ownedSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSession(ctx, session.ID); err != nil {
		return common.ErrInternal(err)
	}
	return nil
}

func (s *Service) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, common.ErrInternal(err)
	}
	return n, nil
}

func (s *Service) BatchMarkMessagesAsRead(ctx context.Context, sessionID, userID uint64) (int64, error) {
	if _, err := s.ownedSession(ctx, sessionID, userID); err != nil {
		return 0, err
	}
	n, err := s.repo.MarkSessionMessagesRead(ctx, sessionID, userID)
	if err != nil {
		return 0, common.ErrInternal(err)
	}
	return n, nil
}

// Reply-job plumbing used by the async send path and the worker.

func (s *Service) CreateReplyJob(ctx context.Context, job *ReplyJob) error {
	return s.repo.CreateJob(ctx, job)
}

func (s *Service) CreateReplyJobOrGetExisting(ctx context.Context, job *ReplyJob) (*ReplyJob, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetReplyJob(ctx context.Context, jobID string) (*ReplyJob, error) {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound(common.CodeDataNotFound, "job not found")
		}
		return nil, common.ErrInternal(err)
	}
	return j, nil
}
