package fixer

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"sector-strength-sentry/pkg/types"
)

// 校验与网络错误提示
const (
	MsgMissingTarget   = "必须指定板块ID或板块名称"
	MsgAmbiguousTarget = "板块ID和板块名称不能同时指定"
	MsgInvalidDays     = "修复天数必须大于0"
	MsgNetworkError    = "网络错误，请检查连接后重试"
)

// FixClient 数据修复接口
type FixClient interface {
	FixClassification(ctx context.Context, req types.FixRequest) (*types.FixOutcome, error)
}

// Listener 状态变化回调，在状态锁之外按迁移顺序调用
type Listener func(prev, next State)

// Orchestrator 修复会话编排器，同一时刻最多一个修复请求在途
type Orchestrator struct {
	client FixClient

	mu         sync.Mutex
	state      State
	generation uint64
	listeners  []Listener
}

// NewOrchestrator 创建修复编排器
func NewOrchestrator(client FixClient) *Orchestrator {
	return &Orchestrator{
		client: client,
		state:  idleState(),
	}
}

// OnStateChange 注册状态变化回调
func (o *Orchestrator) OnStateChange(listener Listener) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.listeners = append(o.listeners, listener)
}

// State 当前状态
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Fix 执行一次修复，返回本次会话的最终状态
// 非 Idle 状态下调用会被忽略并返回当前状态
func (o *Orchestrator) Fix(ctx context.Context, req types.FixRequest) State {
	o.mu.Lock()
	if o.state.Phase != PhaseIdle {
		current := o.state
		o.mu.Unlock()
		zap.L().Warn("⚠️ 已有修复会话未结束，忽略本次请求", zap.String("phase", string(current.Phase)))
		return current
	}
	generation := o.generation
	o.mu.Unlock()

	validating, ok := o.advance(generation, func(State) State {
		return validatingState(req, time.Now())
	})
	if !ok {
		return o.State()
	}

	if message := validate(req); message != "" {
		zap.L().Warn("❌ 修复请求校验失败", zap.String("reason", message))
		final, _ := o.advance(generation, func(from State) State {
			return errorState(from, message)
		})
		return final
	}

	if _, ok := o.advance(generation, fixingState); !ok {
		return o.State()
	}

	zap.L().Info("🔧 开始修复板块分类数据",
		zap.String("session_id", validating.SessionID),
		zap.String("sector_id", req.SectorID),
		zap.String("sector_name", req.SectorName),
		zap.Int("days", req.Days),
		zap.Bool("overwrite", req.Overwrite))

	outcome, err := o.client.FixClassification(ctx, req)

	final, ok := o.advance(generation, func(from State) State {
		switch {
		case err != nil:
			return errorState(from, errorMessage(err))
		case outcome == nil:
			// 无错误但缺少结果，按网络错误处理
			return errorState(from, MsgNetworkError)
		}
		return successState(from, outcome)
	})
	if !ok {
		zap.L().Info("🗑️ 修复会话已重置，丢弃迟到的响应")
		return final
	}

	switch {
	case err != nil:
		zap.L().Error("❌ 板块分类数据修复失败", zap.Error(err))
	case outcome == nil:
		zap.L().Error("❌ 板块分类数据修复失败，响应缺少结果数据")
	default:
		zap.L().Info("✅ 板块分类数据修复完成",
			zap.Int("success_count", outcome.SuccessCount),
			zap.Int("failed_count", outcome.FailedCount),
			zap.Duration("elapsed", time.Since(validating.StartedAt)))
	}
	return final
}

// Reset 从任意状态回到 Idle，在途请求的结果到达后将被丢弃
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	prev := o.state
	o.generation++
	o.state = idleState()
	listeners := o.listeners
	o.mu.Unlock()

	if prev.Phase != PhaseIdle {
		notify(listeners, prev, idleState())
	}
}

// advance 在会话未被重置时执行迁移，返回迁移后的状态以及是否生效
func (o *Orchestrator) advance(generation uint64, next func(from State) State) (State, bool) {
	o.mu.Lock()
	if generation != o.generation {
		current := o.state
		o.mu.Unlock()
		return current, false
	}

	prev := o.state
	updated, err := transition(prev, next(prev))
	if err != nil {
		o.mu.Unlock()
		zap.L().Error("❌ 修复状态迁移被拒绝", zap.Error(err))
		return prev, false
	}
	o.state = updated
	listeners := o.listeners
	o.mu.Unlock()

	notify(listeners, prev, updated)
	return updated, true
}

func notify(listeners []Listener, prev, next State) {
	for _, listener := range listeners {
		listener(prev, next)
	}
}

// validate 校验修复请求，返回空字符串表示通过
func validate(req types.FixRequest) string {
	hasID := strings.TrimSpace(req.SectorID) != ""
	hasName := strings.TrimSpace(req.SectorName) != ""

	switch {
	case !hasID && !hasName:
		return MsgMissingTarget
	case hasID && hasName:
		return MsgAmbiguousTarget
	case req.Days <= 0:
		return MsgInvalidDays
	default:
		return ""
	}
}

func errorMessage(err error) string {
	if message := strings.TrimSpace(err.Error()); message != "" {
		return message
	}
	return MsgNetworkError
}
