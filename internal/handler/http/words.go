package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"draw-guess/internal/registry"
	"draw-guess/internal/service"
)

// WordHandler 封装词库上传相关的 HTTP 处理逻辑。
type WordHandler struct {
	words *service.WordService
}

// NewWordHandler 创建 WordHandler 实例。
func NewWordHandler(words *service.WordService) *WordHandler {
	if words == nil {
		panic("WordService cannot be nil for WordHandler")
	}
	return &WordHandler{words: words}
}

// UploadWordsRequest 定义词库上传请求的结构体。
// words 必须是一个字符串数组；绑定失败 (缺字段或类型不对) 和
// 房间不存在都返回同一个对客户端友好的失败响应。
type UploadWordsRequest struct {
	RoomID string   `json:"roomId" binding:"required"`
	Words  []string `json:"words" binding:"required"`
}

// UploadWordsResponse 定义词库上传的响应结构体。
type UploadWordsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UploadWords 处理 POST /api/words，把新词合并进指定房间的词库。
func (h *WordHandler) UploadWords(c *gin.Context) {
	var req UploadWordsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.UploadWords: Invalid input format")
		c.JSON(http.StatusBadRequest, UploadWordsResponse{
			Success: false,
			Message: "房间不存在或格式错误",
		})
		return
	}
	logCtx := logrus.WithField("room_id", req.RoomID)

	if err := h.words.MergeWords(req.RoomID, req.Words); err != nil {
		if errors.Is(err, registry.ErrRoomNotFound) {
			logCtx.Warn("Handler.UploadWords: Room not found")
		} else {
			logCtx.WithError(err).Error("Handler.UploadWords: Failed to merge words")
		}
		c.JSON(http.StatusBadRequest, UploadWordsResponse{
			Success: false,
			Message: "房间不存在或格式错误",
		})
		return
	}

	logCtx.WithField("words", len(req.Words)).Info("Handler.UploadWords: Word list updated")
	c.JSON(http.StatusOK, UploadWordsResponse{
		Success: true,
		Message: "词库更新成功",
	})
}
