package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

// Health 存活检查
// GET /health
func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{
		"status":   "ok",
		"timezone": h.checkIns.Timezone(),
		"time":     time.Now().Format(time.RFC3339),
	})
}
