package protocol

import "trainarena/game"

// 出站消息类型
const (
	TypeState              = "state"
	TypeInitialState       = "initial_state"
	TypeDeath              = "death"
	TypeSpawnSuccess       = "spawn_success"
	TypeRespawnFailed      = "respawn_failed"
	TypeDropWagonSuccess   = "drop_wagon_success"
	TypeDropWagonFailed    = "drop_wagon_failed"
	TypeWaitingRoom        = "waiting_room"
	TypeGameStartedSuccess = "game_started_success"
	TypeGameOver           = "game_over"
	TypeLeaderboard        = "leaderboard"
	TypeNameCheck          = "name_check"
	TypeSciperCheck        = "sciper_check"
	TypeJoinSuccess        = "join_success"
	TypeDisconnect         = "disconnect"
	TypePing               = "ping"
	TypePong               = "pong"
)

// Simple 只有 type 字段的消息
type Simple struct {
	Type string `json:"type"`
}

func PingMessage() Simple        { return Simple{Type: TypePing} }
func PongMessage() Simple        { return Simple{Type: TypePong} }
func GameStartedMessage() Simple { return Simple{Type: TypeGameStartedSuccess} }

// StateMessage 增量状态
type StateMessage struct {
	Type string     `json:"type"`
	Data game.State `json:"data"`
}

func NewState(s game.State) StateMessage {
	return StateMessage{Type: TypeState, Data: s}
}

// InitialStateData 开局时发送的计时信息
type InitialStateData struct {
	GameLifeTime int     `json:"game_life_time"`
	StartTime    float64 `json:"start_time"`
}

type InitialState struct {
	Type string           `json:"type"`
	Data InitialStateData `json:"data"`
}

func NewInitialState(lifeSeconds int, startUnix float64) InitialState {
	return InitialState{Type: TypeInitialState, Data: InitialStateData{GameLifeTime: lifeSeconds, StartTime: startUnix}}
}

// Death 死亡通知或复活冷却提示；Remaining 单位为秒
type Death struct {
	Type      string  `json:"type"`
	Remaining float64 `json:"remaining"`
	Reason    string  `json:"reason,omitempty"`
}

func NewDeath(remaining float64, reason string) Death {
	return Death{Type: TypeDeath, Remaining: remaining, Reason: reason}
}

type SpawnSuccess struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname"`
}

func NewSpawnSuccess(nickname string) SpawnSuccess {
	return SpawnSuccess{Type: TypeSpawnSuccess, Nickname: nickname}
}

// Failure respawn_failed / drop_wagon_failed
type Failure struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRespawnFailed(msg string) Failure   { return Failure{Type: TypeRespawnFailed, Message: msg} }
func NewDropWagonFailed(msg string) Failure { return Failure{Type: TypeDropWagonFailed, Message: msg} }

// DropWagonSuccess Cooldown 单位为秒
type DropWagonSuccess struct {
	Type     string  `json:"type"`
	Cooldown float64 `json:"cooldown"`
}

func NewDropWagonSuccess(cooldown float64) DropWagonSuccess {
	return DropWagonSuccess{Type: TypeDropWagonSuccess, Cooldown: cooldown}
}

type WaitingRoomData struct {
	RoomID      string   `json:"room_id"`
	Players     []string `json:"players"`
	NbPlayers   int      `json:"nb_players"`
	GameStarted bool     `json:"game_started"`
	WaitingTime int      `json:"waiting_time"`
}

type WaitingRoom struct {
	Type string          `json:"type"`
	Data WaitingRoomData `json:"data"`
}

func NewWaitingRoom(d WaitingRoomData) WaitingRoom {
	return WaitingRoom{Type: TypeWaitingRoom, Data: d}
}

type FinalScore struct {
	Name      string `json:"name"`
	BestScore int    `json:"best_score"`
}

type GameOverData struct {
	Message     string         `json:"message"`
	FinalScores []FinalScore   `json:"final_scores"`
	Duration    int            `json:"duration"`
	BestScores  map[string]int `json:"best_scores"`
}

type GameOver struct {
	Type string       `json:"type"`
	Data GameOverData `json:"data"`
}

func NewGameOver(d GameOverData) GameOver {
	return GameOver{Type: TypeGameOver, Data: d}
}

type Leaderboard struct {
	Type string            `json:"type"`
	Data []game.ScoreEntry `json:"data"`
}

func NewLeaderboard(entries []game.ScoreEntry) Leaderboard {
	return Leaderboard{Type: TypeLeaderboard, Data: entries}
}

type NameCheck struct {
	Type      string `json:"type"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

func NewNameCheck(available bool, reason string) NameCheck {
	return NameCheck{Type: TypeNameCheck, Available: available, Reason: reason}
}

type SciperCheck struct {
	Type      string `json:"type"`
	Available bool   `json:"available"`
}

func NewSciperCheck(available bool) SciperCheck {
	return SciperCheck{Type: TypeSciperCheck, Available: available}
}

type JoinSuccess struct {
	Type            string `json:"type"`
	ExpectedVersion string `json:"expected_version"`
}

func NewJoinSuccess() JoinSuccess {
	return JoinSuccess{Type: TypeJoinSuccess, ExpectedVersion: ExpectedClientVersion}
}

type Disconnect struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewDisconnect(reason string) Disconnect {
	return Disconnect{Type: TypeDisconnect, Reason: reason}
}
