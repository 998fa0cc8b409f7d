// Package protocol 客户端与服务端之间的线上消息：
// 每条消息是一个以换行结尾的 JSON 对象，一个 UDP 包可以携带多条
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"trainarena/game"
)

// ExpectedClientVersion 在 join_success 中告知客户端
const ExpectedClientVersion = "2.0.0"

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrUnknownMessage = errors.New("unknown message")
)

// GameMode 客户端声明的模式
type GameMode string

const (
	ModeAgent    GameMode = "agent"
	ModeManual   GameMode = "manual"
	ModeObserver GameMode = "observer"
)

// Message 入站消息的封闭集合，只有本包内的类型实现它
type Message interface {
	kind() string
}

// AgentIDs 握手：type=agent_ids
type AgentIDs struct {
	Nickname string   `json:"nickname"`
	Sciper   string   `json:"agent_sciper"`
	GameMode GameMode `json:"game_mode"`
}

// Ping type=ping
type Ping struct{}

// Pong type=pong
type Pong struct{}

// CheckName action=check_name
type CheckName struct {
	Name string `json:"agent_name"`
}

// CheckSciper action=check_sciper
type CheckSciper struct {
	Sciper string `json:"agent_sciper"`
}

// Direction action=direction
type Direction struct {
	Direction game.Direction `json:"direction"`
}

// Respawn action=respawn
type Respawn struct{}

// DropWagon action=drop_wagon
type DropWagon struct{}

// StartGame action=start_game
type StartGame struct{}

func (*AgentIDs) kind() string    { return "agent_ids" }
func (*Ping) kind() string        { return "ping" }
func (*Pong) kind() string        { return "pong" }
func (*CheckName) kind() string   { return "check_name" }
func (*CheckSciper) kind() string { return "check_sciper" }
func (*Direction) kind() string   { return "direction" }
func (*Respawn) kind() string     { return "respawn" }
func (*DropWagon) kind() string   { return "drop_wagon" }
func (*StartGame) kind() string   { return "start_game" }

// Kind 消息的标签，用于日志与指标
func Kind(m Message) string {
	if m == nil {
		return ""
	}
	return m.kind()
}

type envelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
}

// Decode 解析一行 JSON；type 优先于 action，未知标签返回 ErrUnknownMessage
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrEmptyMessage
	}
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg Message
	switch env.Type {
	case "agent_ids":
		msg = &AgentIDs{}
	case "ping":
		return &Ping{}, nil
	case "pong":
		return &Pong{}, nil
	case "":
		switch env.Action {
		case "check_name":
			msg = &CheckName{}
		case "check_sciper":
			msg = &CheckSciper{}
		case "direction":
			msg = &Direction{}
		case "respawn":
			return &Respawn{}, nil
		case "drop_wagon":
			return &DropWagon{}, nil
		case "start_game":
			return &StartGame{}, nil
		default:
			return nil, fmt.Errorf("%w: action %q", ErrUnknownMessage, env.Action)
		}
	default:
		return nil, fmt.Errorf("%w: type %q", ErrUnknownMessage, env.Type)
	}

	if err := json.Unmarshal(line, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.kind(), err)
	}
	return msg, nil
}

// SplitPacket 按换行拆分一个数据包，丢弃空行
func SplitPacket(packet []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(packet, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
