package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"

	"DeadOrNot/internal/service"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/response"
)

// GetReminder 当前提醒状态
// GET /v1/reminder
func (h *Handler) GetReminder(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, toReminderData(h.checkIns.Reminder(), nil))
}

// ReconcileReminder 应用恢复时触发对账
// POST /v1/reminder/reconcile
func (h *Handler) ReconcileReminder(ctx context.Context, c *app.RequestContext) {
	state, err := h.checkIns.Reconcile(ctx)
	if errors.Is(err, pkgerrors.LedgerNotLoaded) {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, toReminderData(state, service.Warnings(err)))
}

// CancelReminder 取消当前提醒，下一次对账会重新布置
// DELETE /v1/reminder
func (h *Handler) CancelReminder(ctx context.Context, c *app.RequestContext) {
	state, err := h.checkIns.CancelReminder(ctx)
	response.Success(ctx, c, toReminderData(state, service.Warnings(err)))
}
