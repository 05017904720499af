package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/internal/service"
	"DeadOrNot/pkg/logger"
)

// dailySchedule 每天本地 00:05，时区在每次计算时读取，设备改时区后下一次即生效
type dailySchedule struct {
	location func() *time.Location
}

func (s dailySchedule) Next(t time.Time) time.Time {
	return nextRun(t, s.location())
}

// cronLogger 把 cron 的内部日志接到 zap
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

// runDailyReconcileLoop 每天本地时间 00:05 巡检一次提醒，相当于应用回到前台
func runDailyReconcileLoop(ctx context.Context, checkIns *service.CheckInService) {
	var sched cron.Schedule = dailySchedule{location: checkIns.Location}

	// 在 development 环境下，为了方便本地调试，改为每 1 分钟执行一次
	if config.Cfg.IsDevelopment() {
		sched = cron.Every(time.Minute)
		logger.Logger.Info("Daily reconcile loop running in development mode with 1m interval")
	}

	cl := cronLogger{l: logger.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(sched, cron.FuncJob(func() {
		reconcileOnce(ctx, checkIns)
	}))

	logger.Logger.Info("Scheduled daily reconcile",
		zap.Time("next_run", sched.Next(time.Now())),
	)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// nextRun 下一个本地 00:05，跨 DST 时按日历日计算
func nextRun(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 5, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 5, 0, 0, loc)
	}
	return next
}

// reconcileOnce 已逾期且目标日未变时不重复布置，避免每次巡检都再发一次提醒
func reconcileOnce(ctx context.Context, checkIns *service.CheckInService) {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	state, rearmed, err := checkIns.ReconcileIfStale(runCtx)
	if err != nil {
		logger.Logger.Warn("Daily reconcile finished with errors", zap.Error(err))
		return
	}
	logger.Logger.Info("Daily reconcile completed",
		zap.Bool("rearmed", rearmed),
		zap.String("status", string(state.Status)),
		zap.Time("fire_at", state.FireAt),
	)
}
