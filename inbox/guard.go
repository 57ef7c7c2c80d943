package inbox

import (
	"context"
	"fmt"

	"github.com/Tsukikage7/outboxkit/logger"
)

// OnceOnlyAction 重复请求的处理策略.
type OnceOnlyAction int

const (
	// ActionThrow 返回 ErrOnceOnlyViolation.
	ActionThrow OnceOnlyAction = iota

	// ActionWarn 记录警告日志并跳过处理.
	ActionWarn

	// ActionAllowDuplicate 允许重复处理.
	ActionAllowDuplicate
)

// String 返回策略名称.
func (a OnceOnlyAction) String() string {
	switch a {
	case ActionThrow:
		return "throw"
	case ActionWarn:
		return "warn"
	case ActionAllowDuplicate:
		return "allow_duplicate"
	default:
		return "unknown"
	}
}

// ParseOnceOnlyAction 解析策略名称，未知名称返回 ActionThrow.
func ParseOnceOnlyAction(s string) OnceOnlyAction {
	switch s {
	case "warn":
		return ActionWarn
	case "allow_duplicate":
		return ActionAllowDuplicate
	default:
		return ActionThrow
	}
}

// Handler 请求处理函数.
type Handler func(ctx context.Context, req *Request) error

// Guard 收件箱守卫：处理管道中的去重环节.
//
// 先查收件箱再执行处理器，处理成功后记录请求；
// 重复请求按策略拒绝、告警跳过或放行.
//
// 示例:
//
//	guard := inbox.NewGuard(store, "payment-pipeline",
//	    inbox.WithAction(inbox.ActionWarn),
//	    inbox.WithGuardLogger(log),
//	)
//	err := guard.Handle(ctx, req, processPayment)
type Guard struct {
	store      Store
	contextKey string
	action     OnceOnlyAction
	logger     logger.Logger
}

// GuardOption 守卫配置选项.
type GuardOption func(*Guard)

// WithAction 设置重复请求策略，默认 ActionThrow.
func WithAction(action OnceOnlyAction) GuardOption {
	return func(g *Guard) {
		g.action = action
	}
}

// WithGuardLogger 设置日志记录器.
func WithGuardLogger(log logger.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = log
	}
}

// NewGuard 创建收件箱守卫.
//
// contextKey 标识处理上下文：同一请求在不同上下文中各处理一次.
func NewGuard(store Store, contextKey string, opts ...GuardOption) *Guard {
	if store == nil {
		panic("inbox: 存储实例不能为空")
	}

	g := &Guard{
		store:      store,
		contextKey: contextKey,
		action:     ActionThrow,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle 执行去重检查并调用处理器.
//
// 处理器返回错误时不记录请求，下次投递会重新处理.
func (g *Guard) Handle(ctx context.Context, req *Request, next Handler) error {
	if req == nil {
		return ErrNilRequest
	}
	if next == nil {
		return fmt.Errorf("inbox: 处理器为空")
	}

	exists, err := g.store.Exists(ctx, req.Type, req.ID, g.contextKey)
	if err != nil {
		return err
	}

	if exists {
		switch g.action {
		case ActionThrow:
			return fmt.Errorf("%w: type=%s, id=%s", ErrOnceOnlyViolation, req.Type, req.ID)
		case ActionWarn:
			if g.logger != nil {
				g.logger.Warnf("[Inbox] 重复请求已跳过: type=%s, id=%s, context=%s",
					req.Type, req.ID, g.contextKey)
			}
			return nil
		case ActionAllowDuplicate:
			// 放行，重新处理
		}
	}

	if err := next(ctx, req); err != nil {
		return err
	}

	return g.store.Add(ctx, req, g.contextKey)
}
