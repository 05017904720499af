package handler

import (
	"DeadOrNot/internal/model"
	"DeadOrNot/internal/model/dto"
	"DeadOrNot/internal/service"
)

// Handler 持有 HTTP 层依赖的服务
type Handler struct {
	checkIns    *service.CheckInService
	devices     *service.DeviceService
	authEnabled bool
}

func New(checkIns *service.CheckInService, devices *service.DeviceService, authEnabled bool) *Handler {
	return &Handler{checkIns: checkIns, devices: devices, authEnabled: authEnabled}
}

func toReminderData(state model.ReminderState, warnings []string) *dto.ReminderData {
	data := &dto.ReminderData{
		Identifier: state.Identifier,
		Status:     string(state.Status),
		PastDue:    state.PastDue,
		Warnings:   warnings,
	}
	if data.Status == "" {
		data.Status = string(model.ReminderStatusUnscheduled)
	}
	if state.Status != model.ReminderStatusUnscheduled && state.Status != "" {
		data.BaseDay = state.BaseDay.String()
		data.TargetDay = state.TargetDay.String()
	}
	if !state.FireAt.IsZero() {
		fireAt := state.FireAt
		data.FireAt = &fireAt
	}
	if !state.UpdatedAt.IsZero() {
		updatedAt := state.UpdatedAt
		data.UpdatedAt = &updatedAt
	}
	return data
}
