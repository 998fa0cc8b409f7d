package room

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trainarena/agent"
	"trainarena/game"
)

// BotPrefix AI 列车昵称前缀，人类玩家不能使用
const BotPrefix = "Bot "

var botNamePool = []string{
	"Ada", "Babbage", "Church", "Dijkstra", "Euler", "Fermat", "Gauss", "Hopper",
	"Knuth", "Lovelace", "Noether", "Pascal", "Ritchie", "Shannon", "Turing", "Wirth",
}

const reasonBudget = "agent exceeded time budget"

// controller 一辆由 AI 驾驶的列车；hotSwap 表示接管了掉线玩家
type controller struct {
	nickname string
	agent    agent.Agent
	hotSwap  bool
	inflight *pending
}

type pending struct {
	seq     uint64
	started time.Time
	budget  time.Duration
	cancel  context.CancelFunc
}

type decision struct {
	nickname string
	seq      uint64
	dir      game.Direction
}

func (r *Room) newController(nickname string, hotSwap bool) *controller {
	return &controller{nickname: nickname, agent: r.agents(nickname), hotSwap: hotSwap}
}

// nextBotName 循环使用名字表，重名时追加轮次
func (r *Room) nextBotName() string {
	for {
		base := botNamePool[r.botSeq%len(botNamePool)]
		round := r.botSeq / len(botNamePool)
		r.botSeq++
		name := BotPrefix + base
		if round > 0 {
			name = fmt.Sprintf("%s%d", name, round+1)
		}
		if _, taken := r.bots[name]; !taken && r.memberByNickname(name) == nil {
			return name
		}
	}
}

func (r *Room) fillBots() {
	for r.playerCount() < r.cfg.Capacity {
		name := r.nextBotName()
		r.bots[name] = r.newController(name, false)
		r.log.Infow("bot added", "nickname", name)
	}
}

func (r *Room) botNames() []string {
	names := make([]string, 0, len(r.bots))
	for name := range r.bots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decisionBudget 列车走一格所需的时间；越快预算越紧
func decisionBudget(speed float64) time.Duration {
	if speed <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / speed)
}

// driveBots 检查超时、复活死亡的 AI 列车，并为空闲的控制器发起新决策；从不等待决策返回
func (r *Room) driveBots(now time.Time) {
	r.drainDecisions(now)
	for _, name := range r.botNames() {
		c := r.bots[name]
		if p := c.inflight; p != nil {
			if now.Sub(p.started) > p.budget {
				r.overrun(c, now.Sub(p.started))
			}
			continue
		}
		view, ok := r.game.Train(name)
		if !ok || !view.Alive {
			if r.game.RespawnCooldown(name) == 0 {
				if err := r.game.AddTrain(name); err != nil {
					r.log.Debugw("bot respawn failed", "nickname", name, "err", err)
				}
			}
			continue
		}
		r.launch(c, view.Speed, now)
	}
}

func (r *Room) launch(c *controller, speed float64, now time.Time) {
	budget := decisionBudget(speed)
	obs := r.game.Observe(c.nickname)
	ctx, cancel := context.WithTimeout(r.ctx, budget)
	r.decisionSeq++
	c.inflight = &pending{seq: r.decisionSeq, started: now, budget: budget, cancel: cancel}

	d := decision{nickname: c.nickname, seq: r.decisionSeq}
	ag := c.agent
	go func() {
		defer cancel()
		d.dir = ag.Decide(ctx, obs)
		select {
		case r.decisions <- d:
		case <-r.done:
		}
	}()
}

func (r *Room) drainDecisions(now time.Time) {
	for {
		select {
		case d := <-r.decisions:
			r.applyDecision(d, now)
		default:
			return
		}
	}
}

// applyDecision 超出预算才返回的结果按超时处理，方向不生效
func (r *Room) applyDecision(d decision, now time.Time) {
	c, ok := r.bots[d.nickname]
	if !ok || c.inflight == nil || c.inflight.seq != d.seq {
		r.metrics.IncLateDecision()
		return
	}
	if elapsed := now.Sub(c.inflight.started); elapsed > c.inflight.budget {
		r.overrun(c, elapsed)
		return
	}
	c.inflight.cancel()
	c.inflight = nil
	if r.state != Active || !d.dir.Valid() {
		return
	}
	r.game.ChangeDirection(d.nickname, d.dir)
}

// overrun 决策超时对该身份是致命的：列车被移除，控制器停止，之后返回的结果被丢弃
func (r *Room) overrun(c *controller, elapsed time.Duration) {
	c.inflight.cancel()
	delete(r.bots, c.nickname)
	r.metrics.IncBotOverrun()
	r.log.Warnw("bot removed",
		"nickname", c.nickname,
		"err", fmt.Errorf("%w: %s > %s", ErrBudgetExceeded, elapsed, c.inflight.budget))
	if ev := r.game.KillTrain(c.nickname, reasonBudget); ev != nil {
		r.notifyDeath(*ev)
	}
}

func (r *Room) stopBots() {
	for name, c := range r.bots {
		if c.inflight != nil {
			c.inflight.cancel()
		}
		delete(r.bots, name)
	}
}
