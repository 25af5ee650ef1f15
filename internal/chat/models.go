package chat

import (
	"time"

	"github.com/nutrichat/nutrichat/internal/models"
)

type Session struct {
	models.Audit

	UserID             uint64 `gorm:"index;not null" json:"-"`
	Title              string `gorm:"type:varchar(100)" json:"title"`
	DifySessionID      string `gorm:"type:varchar(100);uniqueIndex;not null" json:"dify_session_id"`
	DifyConversationID string `gorm:"type:varchar(100);index" json:"dify_conversation_id,omitempty"`
	SessionType        int    `gorm:"not null" json:"session_type"`
	Status             int    `gorm:"not null;index" json:"status"`

	// Denormalized list-view fields, maintained by increment on send.
	MessageCount      int        `gorm:"not null;default:0" json:"message_count"`
	LastMessage       string     `gorm:"type:varchar(500)" json:"last_message"`
	LastMessageTime   *time.Time `json:"last_message_time,omitempty"`
	LastMessageSender int        `json:"last_message_sender"`

	IsPinned   bool   `gorm:"not null;default:false" json:"is_pinned"`
	IsFavorite bool   `gorm:"not null;default:false" json:"is_favorite"`
	Rating     int    `json:"rating,omitempty"`
	Feedback   string `gorm:"type:varchar(500)" json:"feedback,omitempty"`

	ClientIP  string `gorm:"type:varchar(45)" json:"-"`
	UserAgent string `gorm:"type:varchar(500)" json:"-"`
}

func (Session) TableName() string { return "chat_sessions" }

type Message struct {
	models.Audit

	SessionID uint64 `gorm:"not null;index;uniqueIndex:uniq_chat_msg_seq,priority:1" json:"session_id"`
	UserID    uint64 `gorm:"index" json:"-"`

	DifyMessageID   string  `gorm:"type:varchar(100);index" json:"dify_message_id,omitempty"`
	ParentMessageID *uint64 `gorm:"index" json:"parent_message_id,omitempty"`

	MessageType int    `gorm:"not null" json:"message_type"`
	SenderType  int    `gorm:"not null;index" json:"sender_type"`
	Content     string `gorm:"type:text;not null" json:"content"`
	Attachments string `gorm:"type:text" json:"attachments,omitempty"`
	Metadata    string `gorm:"type:text" json:"metadata,omitempty"`

	Status       int    `gorm:"not null;index" json:"status"`
	ErrorMessage string `gorm:"type:varchar(500)" json:"error_message,omitempty"`
	RetryCount   int    `gorm:"not null;default:0" json:"retry_count"`

	IsStreaming    bool   `gorm:"not null;default:false" json:"is_streaming"`
	StreamID       string `gorm:"type:varchar(64);index" json:"-"`
	StreamSequence int    `json:"stream_sequence,omitempty"`
	IsStreamEnd    bool   `gorm:"not null;default:false" json:"is_stream_end"`

	// Per-session order. Strictly increasing from 1, never reused.
	SequenceNumber int `gorm:"not null;uniqueIndex:uniq_chat_msg_seq,priority:2" json:"sequence_number"`

	Rating   int    `json:"rating,omitempty"`
	Feedback string `gorm:"type:varchar(500)" json:"feedback,omitempty"`

	ReadTime   *time.Time `json:"read_time,omitempty"`
	RecallTime *time.Time `json:"recall_time,omitempty"`
}

func (Message) TableName() string { return "chat_messages" }

// Session types
const (
	TypeRecipeRecommendation = 1
	TypeNutritionConsult     = 2
	TypeCookingGuidance      = 3
	TypeOther                = 4
)

// Session statuses
const (
	SessionActive = 1
	SessionEnded  = 2
	SessionPaused = 3
)

// Sender types
const (
	SenderUser   = 1
	SenderAI     = 2
	SenderSystem = 3
)

// Message types
const (
	MsgText       = 1
	MsgImage      = 2
	MsgVoice      = 3
	MsgFile       = 5
	MsgRecipeCard = 6
	MsgSystem     = 7
)

// Message statuses
const (
	StatusSending  = 1
	StatusSent     = 2
	StatusRead     = 3
	StatusFailed   = 4
	StatusRecalled = 5
)

// maxContentRunes is the longest accepted message content.
const maxContentRunes = 2000

// lastMessagePreviewRunes bounds the denormalized last_message column.
const lastMessagePreviewRunes = 500
