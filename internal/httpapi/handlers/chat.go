package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutrichat/nutrichat/internal/chat"
	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/httpapi/middleware"
)

func authedUser(c *gin.Context) (uint64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, common.CodeLoginRequired, "login required")
	}
	return uid, ok
}

func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid "+name)
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}

type createSessionReq struct {
	Title       string `json:"title"`
	SessionType int    `json:"session_type"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.Chat.CreateSession(c.Request.Context(), uid, req.Title, req.SessionType, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	page, size := pageQuery(c)
	sessions, total, err := h.Chat.ListSessions(c.Request.Context(), uid, page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"sessions": sessions, "total": total, "page": page})
}

func (h *Handler) SearchChatSessions(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	page, size := pageQuery(c)
	sessions, total, err := h.Chat.SearchSessions(c.Request.Context(), uid, c.Query("keyword"), page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"sessions": sessions, "total": total, "page": page})
}

type sessionStatusReq struct {
	Status int `json:"status" binding:"required"`
}

func (h *Handler) UpdateChatSessionStatus(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	var req sessionStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Chat.UpdateSessionStatus(c.Request.Context(), sid, uid, req.Status); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type pinReq struct {
	Pinned bool `json:"pinned"`
}

func (h *Handler) PinChatSession(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	var req pinReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Chat.SetSessionPinned(c.Request.Context(), sid, uid, req.Pinned); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type ratingReq struct {
	Rating   int    `json:"rating" binding:"required"`
	Feedback string `json:"feedback"`
}

func (h *Handler) RateChatSession(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Chat.RateSession(c.Request.Context(), sid, uid, req.Rating, req.Feedback); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	if err := h.Chat.DeleteSession(c.Request.Context(), sid, uid); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type sendMessageReq struct {
	Content     string `json:"content" binding:"required"`
	MessageType int    `json:"message_type"`
	Attachments string `json:"attachments"`
	Metadata    string `json:"metadata"`
}

// SendChatMessage runs a full blocking chat turn: the user message is
// persisted, the AI gateway is called, and the reply comes back in the
// same response.
func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	userMsg, reply, err := h.Chat.Converse(c.Request.Context(), sid, uid, req.Content, req.MessageType, req.Attachments, req.Metadata)
	if err != nil {
		// the user message may already be persisted; include it so the
		// client can render it and offer a retry
		if userMsg != nil {
			if ae, aok := common.AsAppError(err); aok {
				c.JSON(ae.HTTPStatus, gin.H{
					"code":      ae.Code,
					"message":   ae.Message,
					"data":      gin.H{"message": userMsg},
					"timestamp": time.Now().UnixMilli(),
				})
				return
			}
		}
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"message": userMsg, "reply": reply})
}

// SendChatMessageAsync persists the user message, records a reply job and
// enqueues it. An Idempotency-Key header makes resubmits return the
// original job.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, common.CodeInternal, "async sends unavailable")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	userMsg, err := h.Chat.SendMessage(c.Request.Context(), sid, uid, req.Content, req.MessageType, req.Attachments, req.Metadata)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.FailErr(c, common.ErrInternal(err))
		return
	}

	j := &chat.ReplyJob{
		ID:             jobID,
		UserID:         uid,
		SessionID:      sid,
		UserMessageID:  userMsg.ID,
		Prompt:         req.Content,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}

	job, created, err := h.Chat.CreateReplyJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		common.FailErr(c, common.ErrInternal(err))
		return
	}

	if created {
		if err := h.Rabbit.PublishReplyJob(c.Request.Context(), job.ID); err != nil {
			h.Log.WithError(err).WithField("job_id", job.ID).Error("failed to enqueue reply job")
			common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": job.ID, "message": userMsg})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "job_id required")
		return
	}

	j, err := h.Chat.GetReplyJob(c.Request.Context(), jobID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, common.CodeDataNotFound, "job not found")
		return
	}

	common.OK(c, gin.H{
		"id":                j.ID,
		"session_id":        j.SessionID,
		"status":            j.Status,
		"result_message_id": j.ResultMessageID,
		"error":             j.Error,
		"created_at":        j.CreatedAt,
		"updated_at":        j.UpdatedAt,
	})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	page, size := pageQuery(c)
	msgs, total, err := h.Chat.ListMessages(c.Request.Context(), sid, uid, page, size)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs, "total": total, "page": page})
}

func (h *Handler) MarkMessageRead(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	mid, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.Chat.MarkMessageAsRead(c.Request.Context(), mid, uid); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) RecallMessage(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	mid, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.Chat.RecallMessage(c.Request.Context(), mid, uid); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) RetryMessage(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	mid, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.Chat.RetryMessage(c.Request.Context(), mid, uid); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) RateMessage(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	mid, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	var req ratingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}
	if err := h.Chat.RateMessage(c.Request.Context(), mid, uid, req.Rating, req.Feedback); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, nil)
}

type streamFragmentReq struct {
	StreamID   string `json:"stream_id" binding:"required"`
	Sequence   int    `json:"sequence" binding:"required"`
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

// IngestStreamFragment accepts one fragment of a streamed AI message.
func (h *Handler) IngestStreamFragment(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	var req streamFragmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "invalid json")
		return
	}

	msg, err := h.Chat.HandleStreamMessage(c.Request.Context(), sid, uid, req.StreamID, req.Sequence, req.Content, req.IsComplete)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, msg)
}

func (h *Handler) UnreadMessageCount(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	n, err := h.Chat.CountUnread(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"unread": n})
}

func (h *Handler) BatchMarkMessagesRead(c *gin.Context) {
	uid, ok := authedUser(c)
	if !ok {
		return
	}
	sid, ok := idParam(c, "session_id")
	if !ok {
		return
	}
	n, err := h.Chat.BatchMarkMessagesAsRead(c.Request.Context(), sid, uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"marked": n})
}
