package room

import (
	"net/netip"
	"sort"
	"time"

	"trainarena/game"
	"trainarena/protocol"
)

const gameOverMessage = "Game is over. Time limit reached."

// step 推进一次房间 Tick；返回 false 表示房间已关闭
func (r *Room) step(now time.Time) bool {
	switch r.state {
	case Waiting:
		r.stepWaiting(now)
	case Active:
		r.stepActive(now)
	case Over:
		if now.Sub(r.overAt) >= r.cfg.CloseGrace {
			r.close("game over")
		}
	}
	r.publish()
	return r.state != Closed
}

func (r *Room) stepWaiting(now time.Time) {
	if r.humanCount() == 0 {
		return
	}
	if r.playerCount() >= r.cfg.Capacity {
		r.start(now)
		return
	}
	if r.waitingRemaining(now) <= 0 {
		r.log.Infow("waiting time expired, adding bots", "players", r.playerCount())
		r.fillBots()
		r.start(now)
		return
	}
	if now.Sub(r.lastWaiting) >= time.Second {
		r.lastWaiting = now
		r.broadcast(r.waitingRoomMessage(now))
	}
}

func (r *Room) waitingRemaining(now time.Time) time.Duration {
	if r.firstJoinAt.IsZero() {
		return r.cfg.WaitBeforeBots
	}
	remaining := r.cfg.WaitBeforeBots - now.Sub(r.firstJoinAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Room) waitingRoomMessage(now time.Time) protocol.WaitingRoom {
	waiting := 0
	if r.state == Waiting && r.humanCount() > 0 {
		waiting = int(r.waitingRemaining(now).Seconds())
	}
	return protocol.NewWaitingRoom(protocol.WaitingRoomData{
		RoomID:      r.ID,
		Players:     r.playerNames(),
		NbPlayers:   r.cfg.Capacity,
		GameStarted: r.state != Waiting,
		WaitingTime: waiting,
	})
}

// start 确定世界尺寸、放出 AI 列车并通知所有成员
func (r *Room) start(now time.Time) {
	r.state = Active
	r.startedAt = now
	r.game.InitializeGameSize(r.playerCount())
	for _, name := range r.botNames() {
		if err := r.game.AddTrain(name); err != nil {
			r.log.Warnw("spawn bot failed", "nickname", name, "err", err)
		}
	}
	r.broadcast(protocol.GameStartedMessage())
	r.broadcast(protocol.NewInitialState(int(r.cfg.Lifetime.Seconds()), float64(now.UnixNano())/1e9))
	r.broadcast(r.waitingRoomMessage(now))
	r.log.Infow("game started", "players", r.playerNames())
}

func (r *Room) stepActive(now time.Time) {
	r.ticks++
	r.driveBots(now)

	for _, ev := range r.game.Update() {
		r.notifyDeath(ev)
	}

	if r.ticks%r.broadcastEvery == 0 {
		r.broadcastState()
	}
	if r.ticks%int64(r.cfg.TickRate) == 0 {
		r.broadcast(protocol.NewLeaderboard(r.game.Leaderboard()))
	}
	if now.Sub(r.startedAt) >= r.cfg.Lifetime {
		r.endGame(now)
	}
}

func (r *Room) notifyDeath(ev game.DeathEvent) {
	remaining := r.cfg.Game.TicksToSeconds(r.cfg.Game.RespawnCooldownTicks)
	for _, nick := range ev.Nicknames {
		r.metrics.IncDeaths()
		if m := r.memberByNickname(nick); m != nil && !m.Observer {
			r.sendTo(m.Addr, protocol.NewDeath(remaining, ev.ReasonFor(nick)))
		}
	}
}

func (r *Room) broadcastState() {
	s := r.game.GetState()
	if s.Empty() {
		return
	}
	r.broadcast(protocol.NewState(s))
	r.metrics.IncBroadcast()
}

// endGame 汇总最高分、并入持久化分数表并广播 game_over
func (r *Room) endGame(now time.Time) {
	r.state = Over
	r.overAt = now
	r.stopBots()

	best := r.game.BestScores()
	final := make([]protocol.FinalScore, 0, len(best))
	for name, score := range best {
		final = append(final, protocol.FinalScore{Name: name, BestScore: score})
		if sciper := r.scipers[name]; sciper != "" && r.scores.Update(sciper, score) {
			r.log.Infow("best score updated", "nickname", name, "sciper", sciper, "score", score)
		}
	}
	sort.Slice(final, func(i, j int) bool {
		if final[i].BestScore != final[j].BestScore {
			return final[i].BestScore > final[j].BestScore
		}
		return final[i].Name < final[j].Name
	})

	r.broadcastState()
	r.broadcast(protocol.NewGameOver(protocol.GameOverData{
		Message:     gameOverMessage,
		FinalScores: final,
		Duration:    int(r.cfg.Lifetime.Seconds()),
		BestScores:  r.scores.Snapshot(),
	}))
	r.log.Infow("game over", "duration", now.Sub(r.startedAt), "final_scores", final)
}

func (r *Room) close(reason string) {
	if r.state == Closed {
		return
	}
	r.state = Closed
	r.stopBots()
	for s := range r.spectators {
		s.Close()
	}
	r.spectators = map[*Spectator]struct{}{}
	r.cancel()
	r.publish()
	r.log.Infow("room closed", "reason", reason, "metrics", r.metrics.Snapshot())
}

func (r *Room) broadcast(msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		r.log.Errorw("encode broadcast", "err", err)
		return
	}
	to := make([]netip.AddrPort, 0, len(r.members))
	for addr := range r.members {
		to = append(to, addr)
	}
	r.emit(to, payload)

	if len(r.spectators) == 0 {
		return
	}
	var binary []byte
	for s := range r.spectators {
		frame := payload
		if s.binary {
			if binary == nil {
				if binary, err = protocol.EncodeMsgpack(msg); err != nil {
					r.log.Errorw("encode msgpack broadcast", "err", err)
					continue
				}
			}
			frame = binary
		}
		if !s.Enqueue(frame) {
			r.metrics.IncSpectatorDropped()
		}
	}
}

func (r *Room) sendTo(addr netip.AddrPort, msg any) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		r.log.Errorw("encode message", "err", err)
		return
	}
	r.emit([]netip.AddrPort{addr}, payload)
}

func (r *Room) sendSpectator(s *Spectator, msg any) {
	var (
		frame []byte
		err   error
	)
	if s.binary {
		frame, err = protocol.EncodeMsgpack(msg)
	} else {
		frame, err = protocol.Encode(msg)
	}
	if err != nil {
		r.log.Errorw("encode spectator frame", "err", err)
		return
	}
	if !s.Enqueue(frame) {
		r.metrics.IncSpectatorDropped()
	}
}

// emit 非阻塞投递：发送队列满时丢弃，保证 Tick 准时
func (r *Room) emit(to []netip.AddrPort, payload []byte) {
	if len(to) == 0 || r.out == nil {
		return
	}
	select {
	case r.out <- Outbound{To: to, Payload: payload}:
	default:
		r.metrics.IncOutboundDropped()
	}
}
