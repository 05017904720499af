package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"

	"DeadOrNot/internal/handler"
	"DeadOrNot/internal/middleware"
)

// Register 注册路由。authorizer 为 nil 时不启用设备鉴权（本机模式）
func Register(h *server.Hertz, hd *handler.Handler, authorizer middleware.DeviceAuthorizer) {
	h.Use(middleware.RecoverMiddleware())
	h.Use(middleware.CORSMiddleware())
	h.Use(middleware.OpenTelemetryMiddleware())

	h.GET("/health", hd.Health)

	var auth []app.HandlerFunc
	if authorizer != nil {
		auth = []app.HandlerFunc{middleware.AuthMiddleware(), middleware.DeviceBindingMiddleware(authorizer)}
	}

	v1 := h.Group("/v1")

	// 设备相关路由，申请令牌不需要鉴权
	device := v1.Group("/device")
	{
		device.POST("/token", hd.IssueDeviceToken)
		device.PUT("/timezone", append(auth, hd.UpdateTimezone)...)
	}

	// 打卡路由
	checkIns := v1.Group("/check-ins", auth...)
	{
		checkIns.GET("/today", hd.GetTodayCheckIn)
		checkIns.POST("/today/complete", hd.CompleteTodayCheckIn)
		checkIns.GET("/history", hd.GetCheckInHistory)
		checkIns.GET("/stats", hd.GetCheckInStats)
	}

	// 提醒路由
	reminder := v1.Group("/reminder", auth...)
	{
		reminder.GET("", hd.GetReminder)
		reminder.POST("/reconcile", hd.ReconcileReminder)
		reminder.DELETE("", hd.CancelReminder)
	}
}
