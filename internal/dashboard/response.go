package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/datalab-agent/analyst-go/pkg/errors"
	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// 统一响应辅助, 所有 handler 共用。

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"success": false, "error": gin.H{"code": code, "message": message}})
}

func badRequest(c *gin.Context, code, message string) {
	fail(c, http.StatusBadRequest, code, message)
}

func serverError(c *gin.Context, err error) {
	logger.FromContext(c.Request.Context()).Error("dashboard: internal error",
		logger.FieldRoute, c.FullPath(),
		logger.FieldError, err,
	)
	fail(c, http.StatusInternalServerError, "internal_error", "服务器内部错误")
}

// writeError 按哨兵错误映射 HTTP 状态码, 未识别的错误按 500 处理。
func writeError(c *gin.Context, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrEmptyMessage):
		badRequest(c, "empty_message", "请输入消息内容")
	case apperrors.Is(err, apperrors.ErrNoDataset):
		badRequest(c, "no_dataset", "请先选择会话和数据集")
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		badRequest(c, "invalid_input", err.Error())
	case apperrors.Is(err, apperrors.ErrBusy):
		fail(c, http.StatusConflict, "busy", "上一条消息仍在处理中，请稍候")
	case apperrors.Is(err, apperrors.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", err.Error())
	case apperrors.Is(err, apperrors.ErrTimeout):
		fail(c, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		serverError(c, err)
	}
}

// bindJSON 解析请求体到 P 后调用 fn; 空请求体按零值处理。
func bindJSON[P any](fn func(c *gin.Context, p P)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var p P
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&p); err != nil {
				badRequest(c, "invalid_request", err.Error())
				return
			}
		}
		fn(c, p)
	}
}
