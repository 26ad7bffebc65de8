package botcore

import (
	"context"
)

// Matcher 定义路由匹配逻辑。
// 返回 true 表示该路由应该处理此 Update。
type Matcher func(update Update) bool

// Handler 定义路由处理逻辑，语义上等同 PipelineInvoker。
type Handler PipelineInvoker

// Route 定义单条路由规则。
type Route struct {
	Name    string
	Matcher Matcher
	Handler Handler
}

// Chain 实现了一个基于路由表的 PipelineInvoker。
// 它按顺序检查路由，一旦匹配成功就移交给对应的 Handler，并停止后续匹配。
// 所有路由都不匹配时调用 DefaultHandler。
type Chain struct {
	routes         []Route
	defaultHandler Handler
}

// NewChain 创建一个新的路由器。
func NewChain(defaultHandler Handler) *Chain {
	return &Chain{
		routes:         make([]Route, 0),
		defaultHandler: defaultHandler,
	}
}

// AddRoute 添加一条路由规则。
func (c *Chain) AddRoute(name string, matcher Matcher, handler Handler) {
	c.routes = append(c.routes, Route{
		Name:    name,
		Matcher: matcher,
		Handler: handler,
	})
}

// Trigger 实现 PipelineInvoker 接口。
func (c *Chain) Trigger(ctx context.Context, update Update, streamID string) <-chan StreamChunk {
	for _, route := range c.routes {
		if route.Matcher(update) {
			return route.Handler.Trigger(ctx, update, streamID)
		}
	}

	if c.defaultHandler != nil {
		return c.defaultHandler.Trigger(ctx, update, streamID)
	}

	// 既无匹配也无默认处理器，返回空流
	return nil
}
