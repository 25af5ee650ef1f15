package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, id uint64) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertSequenced assigns the next per-session sequence number and writes
// the message together with the session's denormalized bookkeeping, as one
// transaction. The counter update runs first so the session row lock
// serializes concurrent senders before the MAX(sequence_number) read; the
// unique (session_id, sequence_number) index backstops the invariant.
func (r *Repo) InsertSequenced(ctx context.Context, sessionID uint64, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&Session{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"message_count":       gorm.Expr("message_count + 1"),
				"last_message":        truncateRunes(m.Content, lastMessagePreviewRunes),
				"last_message_time":   now,
				"last_message_sender": m.SenderType,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var next int
		if err := tx.Model(&Message{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(sequence_number), 0) + 1").
			Scan(&next).Error; err != nil {
			return err
		}

		m.SessionID = sessionID
		m.SequenceNumber = next
		return tx.Create(m).Error
	})
}

func (r *Repo) GetMessage(ctx context.Context, id uint64) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns one page in ascending sequence order.
func (r *Repo) ListMessages(ctx context.Context, sessionID uint64, page, size int) ([]Message, int64, error) {
	q := r.db.WithContext(ctx).Model(&Message{}).Where("session_id = ?", sessionID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []Message
	if err := q.Order("sequence_number ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&msgs).Error; err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

// ListSessions returns one page of a user's sessions, pinned first, most
// recently active next.
func (r *Repo) ListSessions(ctx context.Context, userID uint64, page, size int) ([]Session, int64, error) {
	q := r.db.WithContext(ctx).Model(&Session{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []Session
	if err := q.Order("is_pinned DESC, last_message_time DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *Repo) SearchSessions(ctx context.Context, userID uint64, keyword string, page, size int) ([]Session, int64, error) {
	like := "%" + keyword + "%"
	q := r.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ?", userID).
		Where("title LIKE ? OR last_message LIKE ?", like, like)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []Session
	if err := q.Order("last_message_time DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&sessions).Error; err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

// UpdateMessageGuarded applies updates to a message only when the current
// version matches and the status is one of fromStatuses (ignored when
// empty). The version is incremented in the same statement.
func (r *Repo) UpdateMessageGuarded(ctx context.Context, id uint64, version int, fromStatuses []int, updates map[string]any) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	q := r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ? AND version = ?", id, version)
	if len(fromStatuses) > 0 {
		q = q.Where("status IN ?", fromStatuses)
	}
	res := q.Updates(updates)
	return res.RowsAffected, res.Error
}

// UpdateSessionGuarded is the session-side optimistic update.
func (r *Repo) UpdateSessionGuarded(ctx context.Context, id uint64, version int, updates map[string]any) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// UpdateSessionLastMessage refreshes the denormalized preview without
// touching message_count. Used when a streamed message completes.
func (r *Repo) UpdateSessionLastMessage(ctx context.Context, sessionID uint64, content string, senderType int) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"last_message":        truncateRunes(content, lastMessagePreviewRunes),
			"last_message_time":   time.Now(),
			"last_message_sender": senderType,
		}).Error
}

func (r *Repo) SetDifyConversationID(ctx context.Context, sessionID uint64, conversationID string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND (dify_conversation_id = '' OR dify_conversation_id IS NULL)", sessionID).
		Update("dify_conversation_id", conversationID).Error
}

func (r *Repo) DeleteSession(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Session{}, "id = ?", id).Error
}

func (r *Repo) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("user_id = ? AND sender_type <> ? AND status = ?", userID, SenderUser, StatusSent).
		Count(&n).Error
	return n, err
}

// MarkSessionMessagesRead marks every delivered message in the session that
// the user did not author as read.
func (r *Repo) MarkSessionMessagesRead(ctx context.Context, sessionID, userID uint64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ? AND sender_type <> ? AND status = ?", sessionID, SenderUser, StatusSent).
		Updates(map[string]any{
			"status":    StatusRead,
			"read_time": time.Now(),
			"version":   gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

// UpdateMessageFields is an unguarded field update used only by the stream
// accumulator, whose per-stream mutex already serializes writers.
func (r *Repo) UpdateMessageFields(ctx context.Context, id uint64, updates map[string]any) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Reply-job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *ReplyJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*ReplyJob, error) {
	var j ReplyJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&ReplyJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&ReplyJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&ReplyJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID uint64, key string) (*ReplyJob, error) {
	var job ReplyJob
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job; if the idempotency key was
// already used it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *ReplyJob) (*ReplyJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}

	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
