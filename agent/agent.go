// Package agent 服务端 AI 列车的决策逻辑
package agent

import (
	"context"

	"trainarena/game"
)

// Agent 根据观察快照给出下一步方向
// 调用方负责时间预算：ctx 到期后返回的结果会被丢弃
type Agent interface {
	Decide(ctx context.Context, obs game.Observation) game.Direction
}

// Func 让普通函数满足 Agent
type Func func(ctx context.Context, obs game.Observation) game.Direction

func (f Func) Decide(ctx context.Context, obs game.Observation) game.Direction {
	return f(ctx, obs)
}

// Factory 为指定昵称创建一个 Agent，房间为每个 AI 列车调用一次
type Factory func(nickname string) Agent

// DefaultFactory 所有 AI 列车都使用 Greedy
func DefaultFactory(string) Agent {
	return Greedy{}
}
