package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"DeadOrNot/internal/model/dto"
	"DeadOrNot/pkg/response"
)

// GetTodayCheckIn 查询当天打卡状态，应用每次回到前台时调用
// GET /v1/check-ins/today
func (h *Handler) GetTodayCheckIn(ctx context.Context, c *app.RequestContext) {
	status, err := h.checkIns.Today(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	data := dto.CheckInStatusData{
		Date:          status.Today.String(),
		Timezone:      status.Timezone,
		CheckedIn:     status.CheckedIn,
		CurrentStreak: status.Streak,
		Reminder:      toReminderData(status.Reminder, nil),
	}
	if status.HasCheckIn {
		data.LastCheckInAt = status.LastCheckIn.String()
	}

	response.Success(ctx, c, data)
}

// CompleteTodayCheckIn 完成当日打卡，重复打卡同样返回成功
// POST /v1/check-ins/today/complete
func (h *Handler) CompleteTodayCheckIn(ctx context.Context, c *app.RequestContext) {
	result, err := h.checkIns.CheckIn(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.CompleteCheckInResponse{
		CompletedAt: result.CompletedAt,
		Date:        result.Day.String(),
		WasNew:      result.WasNew,
		StreakDays:  result.Streak,
		Warnings:    result.Warnings,
		Reminder:    toReminderData(result.Reminder, nil),
	})
}

// GetCheckInHistory 查询打卡历史
// GET /v1/check-ins/history?start_date=&end_date=
func (h *Handler) GetCheckInHistory(ctx context.Context, c *app.RequestContext) {
	var query dto.CheckInHistoryQuery
	if err := c.Bind(&query); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	days, err := h.checkIns.History(ctx, query.StartDate, query.EndDate)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	dates := make([]string, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.String())
	}
	response.Success(ctx, c, dto.CheckInHistoryResponse{Dates: dates, Total: len(dates)})
}

// GetCheckInStats 连续打卡与累计统计
// GET /v1/check-ins/stats
func (h *Handler) GetCheckInStats(ctx context.Context, c *app.RequestContext) {
	stats, err := h.checkIns.Stats(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	data := dto.CheckInStatsResponse{
		CurrentStreak: stats.CurrentStreak,
		LongestStreak: stats.LongestStreak,
		TotalDays:     stats.TotalDays,
	}
	if stats.HasCheckIn {
		data.LastCheckInDate = stats.LastCheckIn.String()
	}
	response.Success(ctx, c, data)
}
