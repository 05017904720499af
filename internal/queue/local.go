package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/internal/service"
)

const (
	minDelay       = time.Second
	deliverTimeout = 30 * time.Second
)

// 送达失败后的重试间隔，用完后放弃本次提醒
var defaultRetryDelays = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}

// Deliverer 到期后真正送达提醒
type Deliverer interface {
	Deliver(ctx context.Context, notice service.ReminderNotice) error
}

// FiredHook 本地定时器触发后回调，用于把调度状态置为 fired
type FiredHook func(identifier string, firedAt time.Time)

type localTimer struct {
	timer *time.Timer
	seq   uint64
}

// LocalSink 进程内定时器，每个 identifier 至多一个。
// 投递中和等待重试的提醒仍占着 identifier，直到送达或放弃。
type LocalSink struct {
	deliverer   Deliverer
	onFired     FiredHook
	logger      *zap.Logger
	now         func() time.Time
	afterFunc   func(d time.Duration, f func()) *time.Timer
	timers      map[string]localTimer
	retryDelays []time.Duration
	seq         uint64
	mu          sync.Mutex
}

func NewLocalSink(deliverer Deliverer, onFired FiredHook, logger *zap.Logger) *LocalSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalSink{
		deliverer:   deliverer,
		onFired:     onFired,
		logger:      logger,
		now:         time.Now,
		afterFunc:   time.AfterFunc,
		timers:      make(map[string]localTimer),
		retryDelays: defaultRetryDelays,
	}
}

// SetFiredHook 服务构造完成后再挂上回调
func (s *LocalSink) SetFiredHook(hook FiredHook) {
	s.mu.Lock()
	s.onFired = hook
	s.mu.Unlock()
}

func (s *LocalSink) Name() string { return "local" }

func (s *LocalSink) Arm(ctx context.Context, identifier string, fireAt time.Time, title, body string) error {
	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.schedule(identifier, delay, service.ReminderNotice{
		FireAt:     fireAt,
		Identifier: identifier,
		Title:      title,
		Body:       body,
	})
	return nil
}

func (s *LocalSink) ArmAfterDelay(ctx context.Context, identifier string, delay time.Duration, title, body string) error {
	if delay < minDelay {
		delay = minDelay
	}
	s.schedule(identifier, delay, service.ReminderNotice{
		FireAt:     s.now().Add(delay),
		Identifier: identifier,
		Title:      title,
		Body:       body,
		PastDue:    true,
	})
	return nil
}

func (s *LocalSink) Cancel(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[identifier]; ok {
		t.timer.Stop()
		delete(s.timers, identifier)
	}
	return nil
}

// Pending 是否有尚未结束的布置（等待触发、投递中或等待重试）
func (s *LocalSink) Pending(identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[identifier]
	return ok
}

// Stop 停止所有定时器，进程退出时调用
func (s *LocalSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *LocalSink) schedule(identifier string, delay time.Duration, notice service.ReminderNotice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[identifier]; ok {
		old.timer.Stop()
	}

	s.seq++
	seq := s.seq
	s.timers[identifier] = localTimer{
		seq:   seq,
		timer: s.afterFunc(delay, func() { s.fire(identifier, seq, notice, 0) }),
	}

	s.logger.Debug("Local reminder armed",
		zap.String("identifier", identifier),
		zap.Duration("delay", delay),
		zap.Bool("past_due", notice.PastDue),
	)
}

// current 调用方需持有 s.mu
func (s *LocalSink) current(identifier string, seq uint64) bool {
	t, ok := s.timers[identifier]
	return ok && t.seq == seq
}

func (s *LocalSink) fire(identifier string, seq uint64, notice service.ReminderNotice, attempt int) {
	s.mu.Lock()
	if !s.current(identifier, seq) {
		// 已被取消或替换
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	err := s.deliverer.Deliver(ctx, notice)
	cancel()

	s.mu.Lock()
	if !s.current(identifier, seq) {
		// 投递期间被取消或重新布置，结果不再回报
		s.mu.Unlock()
		return
	}
	if err != nil && attempt < len(s.retryDelays) {
		delay := s.retryDelays[attempt]
		s.timers[identifier] = localTimer{
			seq:   seq,
			timer: s.afterFunc(delay, func() { s.fire(identifier, seq, notice, attempt+1) }),
		}
		s.mu.Unlock()

		s.logger.Warn("Local reminder delivery failed, will retry",
			zap.String("identifier", identifier),
			zap.Int("attempt", attempt+1),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		return
	}
	delete(s.timers, identifier)
	hook := s.onFired
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Local reminder delivery failed, giving up",
			zap.String("identifier", identifier),
			zap.Int("attempts", attempt+1),
			zap.Error(err),
		)
	}

	// 回调会获取服务锁，必须在释放 sink 锁之后调用
	if hook != nil {
		hook(identifier, s.now())
	}
}
