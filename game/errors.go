package game

import (
	"errors"
	"fmt"
)

var (
	ErrNoWagons      = errors.New("no wagons available")
	ErrTrainNotFound = errors.New("train not found")
	ErrTrainDead     = errors.New("train is dead")
	ErrTrainAlive    = errors.New("train already alive")
	ErrRoomFull      = errors.New("train capacity reached")
)

// CooldownError 冷却中的操作被拒绝，Remaining 为剩余 tick 数
type CooldownError struct {
	Action    string
	Remaining int64
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s cooldown active for %d ticks", e.Action, e.Remaining)
}
