package room

import (
	"errors"
	"fmt"
	"net/netip"

	"trainarena/game"
	"trainarena/protocol"
)

// handleAction 在 Tick 协程中应用一个客户端动作，与 Game.Update 互不交错
func (r *Room) handleAction(addr netip.AddrPort, msg protocol.Message) {
	m, ok := r.members[addr]
	if !ok {
		return
	}
	switch msg := msg.(type) {
	case *protocol.Direction:
		if m.Observer || r.state != Active {
			return
		}
		r.game.ChangeDirection(m.Nickname, msg.Direction)
	case *protocol.Respawn:
		r.respawn(m)
	case *protocol.DropWagon:
		r.dropWagon(m)
	case *protocol.StartGame:
		// 客户端在等待期间会反复发送，只在对局中确认
		if r.state == Active {
			r.sendTo(m.Addr, protocol.GameStartedMessage())
		}
	default:
		r.log.Debugw("ignoring action", "kind", protocol.Kind(msg), "nickname", m.Nickname)
	}
}

func (r *Room) respawn(m *Member) {
	switch {
	case m.Observer:
		r.sendTo(m.Addr, protocol.NewRespawnFailed("Observers cannot spawn"))
		return
	case r.state == Waiting:
		r.sendTo(m.Addr, protocol.NewRespawnFailed("Game has not started"))
		return
	case r.state != Active:
		r.sendTo(m.Addr, protocol.NewRespawnFailed("Game is over"))
		return
	}

	err := r.game.AddTrain(m.Nickname)
	var cd *game.CooldownError
	switch {
	case err == nil:
		r.sendTo(m.Addr, protocol.NewSpawnSuccess(m.Nickname))
	case errors.As(err, &cd):
		r.sendTo(m.Addr, protocol.NewDeath(r.cfg.Game.TicksToSeconds(cd.Remaining), ""))
	case errors.Is(err, game.ErrTrainAlive):
		r.sendTo(m.Addr, protocol.NewRespawnFailed("Train already alive"))
	case errors.Is(err, game.ErrRoomFull):
		r.sendTo(m.Addr, protocol.NewRespawnFailed("Room is full"))
	default:
		r.log.Warnw("spawn failed", "nickname", m.Nickname, "err", err)
		r.sendTo(m.Addr, protocol.NewRespawnFailed("Failed to spawn train"))
	}
}

func (r *Room) dropWagon(m *Member) {
	if m.Observer || r.state != Active {
		return
	}
	_, err := r.game.DropWagon(m.Nickname)
	var cd *game.CooldownError
	switch {
	case err == nil:
		r.sendTo(m.Addr, protocol.NewDropWagonSuccess(r.cfg.Game.TicksToSeconds(r.cfg.Game.DropCooldownTicks)))
	case errors.As(err, &cd):
		msg := fmt.Sprintf("Cannot drop wagon (cooldown active for %.1f seconds)", r.cfg.Game.TicksToSeconds(cd.Remaining))
		r.sendTo(m.Addr, protocol.NewDropWagonFailed(msg))
	case errors.Is(err, game.ErrNoWagons):
		r.sendTo(m.Addr, protocol.NewDropWagonFailed("Cannot drop wagon (no wagons available)"))
	default:
		r.sendTo(m.Addr, protocol.NewDropWagonFailed("Cannot drop wagon (train is not alive)"))
	}
}
