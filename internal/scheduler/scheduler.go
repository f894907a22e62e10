package scheduler

import (
	"context"
	"time"

	"rayven/internal/logger"
)

// CycleScheduler 按固定间隔对齐执行决策周期。
// 对齐到整点边界（如 60s 间隔在每分钟 0 秒触发），
// 保证每轮吃到的都是刚收盘的 K 线。
type CycleScheduler struct {
	Interval       time.Duration
	Offset         time.Duration // 收盘后额外等待，给交易所落数据留余量
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

// New 构造调度器。
func New(ctx context.Context, interval, offset time.Duration) *CycleScheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	return &CycleScheduler{
		Interval: interval,
		Offset:   offset,
		ctx:      ctx,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行，直到 ctx 取消。
func (s *CycleScheduler) Start(task func()) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	logger.Infof("scheduler: started interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task()
	}

	for {
		now := s.nowFn().UTC()
		wakeAt := now.Truncate(s.Interval).Add(s.Interval).Add(s.Offset)
		wait := wakeAt.Sub(now)
		if wait <= 0 {
			task()
			continue
		}
		logger.Debugf("scheduler: 下一轮 %s (in %s)", wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Infof("scheduler: ctx done, exit")
			return
		case <-timer.C:
		}
		task()
	}
}
