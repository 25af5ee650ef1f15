package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// ReplyJob is one queued AI-reply generation for an already persisted user
// message. The user message is written synchronously; the gateway call and
// the assistant message happen in the worker.
type ReplyJob struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	UserID        uint64 `gorm:"index;not null;uniqueIndex:uniq_reply_job_user_key,priority:1"`
	SessionID     uint64 `gorm:"index;not null"`
	UserMessageID uint64 `gorm:"not null"`

	Prompt string `gorm:"type:text;not null"`

	// Unique per user; different users may reuse the same key.
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex:uniq_reply_job_user_key,priority:2" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReplyJob) TableName() string { return "chat_reply_jobs" }
