package handler

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"

	"DeadOrNot/internal/model/dto"
	"DeadOrNot/internal/service"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/response"
)

// IssueDeviceToken 首次调用的设备绑定账本并获得令牌
// POST /v1/device/token
func (h *Handler) IssueDeviceToken(ctx context.Context, c *app.RequestContext) {
	if !h.authEnabled {
		response.Error(ctx, c, pkgerrors.AuthDisabled)
		return
	}

	var req dto.DeviceTokenRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	tok, err := h.devices.IssueToken(ctx, req.DeviceID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.DeviceTokenResponse{
		DeviceID:    tok.DeviceID,
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		TokenType:   "Bearer",
	})
}

// UpdateTimezone 设备时区变化，立即对账
// PUT /v1/device/timezone
func (h *Handler) UpdateTimezone(ctx context.Context, c *app.RequestContext) {
	var req dto.UpdateTimezoneRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	state, err := h.checkIns.SetTimezone(ctx, req.Timezone)
	if errors.Is(err, pkgerrors.InvalidTimezone) {
		response.Error(ctx, c, err)
		return
	}

	response.SuccessWithMeta(ctx, c, toReminderData(state, service.Warnings(err)), map[string]interface{}{
		"timezone": h.checkIns.Timezone(),
	})
}
