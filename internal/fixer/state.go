// Package fixer 板块分类数据修复会话的状态机
package fixer

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"sector-strength-sentry/pkg/types"
)

// Phase 修复会话所处阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseFixing     Phase = "fixing"
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// Terminal 是否为终态
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// State 修复会话状态
// Outcome 仅在 Success 阶段非空，Message 仅在 Error 阶段非空
// SessionID 在进入 Validating 时生成，贯穿同一会话的日志、通知与历史记录
type State struct {
	Phase     Phase
	SessionID string
	Request   *types.FixRequest
	Outcome   *types.FixOutcome
	Message   string
	StartedAt time.Time
}

// legalTransitions 合法的状态迁移，任意状态都可以回到 Idle
var legalTransitions = map[Phase][]Phase{
	PhaseIdle:       {PhaseValidating},
	PhaseValidating: {PhaseFixing, PhaseError},
	PhaseFixing:     {PhaseSuccess, PhaseError},
	PhaseSuccess:    {},
	PhaseError:      {},
}

func idleState() State {
	return State{Phase: PhaseIdle}
}

func validatingState(req types.FixRequest, startedAt time.Time) State {
	return State{Phase: PhaseValidating, SessionID: uuid.NewString(), Request: &req, StartedAt: startedAt}
}

func fixingState(from State) State {
	return State{Phase: PhaseFixing, SessionID: from.SessionID, Request: from.Request, StartedAt: from.StartedAt}
}

func successState(from State, outcome *types.FixOutcome) State {
	return State{Phase: PhaseSuccess, SessionID: from.SessionID, Request: from.Request, Outcome: outcome, StartedAt: from.StartedAt}
}

func errorState(from State, message string) State {
	return State{Phase: PhaseError, SessionID: from.SessionID, Request: from.Request, Message: message, StartedAt: from.StartedAt}
}

// transition 唯一的状态迁移入口，非法迁移返回错误且状态不变
func transition(from, to State) (State, error) {
	if to.Phase == PhaseIdle {
		return idleState(), nil
	}

	for _, next := range legalTransitions[from.Phase] {
		if next == to.Phase {
			return to, nil
		}
	}
	return from, fmt.Errorf("非法的状态迁移: %s -> %s", from.Phase, to.Phase)
}

// Report 将终态转换为修复报告，非终态返回空
func (s State) Report(finishedAt time.Time) *types.FixReport {
	if !s.Phase.Terminal() || s.Request == nil {
		return nil
	}

	return &types.FixReport{
		SessionID:  s.SessionID,
		Request:    *s.Request,
		Success:    s.Phase == PhaseSuccess,
		Outcome:    s.Outcome,
		Message:    s.Message,
		StartedAt:  s.StartedAt,
		FinishedAt: finishedAt,
	}
}
