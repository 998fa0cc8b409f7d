package server

import (
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"trainarena/room"
)

const (
	maxNicknameLength = 15
	sciperLength      = 6
	observerPrefix    = "Observer_"
	staffPrefix       = "staff"
)

// nicknameProblem 返回昵称不可用的原因，可用时返回空串
func (s *Server) nicknameProblem(name string) string {
	switch {
	case name == "":
		return "empty name"
	case utf8.RuneCountInString(name) > maxNicknameLength:
		return "name too long"
	case strings.HasPrefix(name, staffPrefix):
		return "name starts with 'staff'"
	case strings.HasPrefix(name, room.BotPrefix), strings.HasPrefix(name, observerPrefix):
		return "name is reserved"
	case s.sessions.NameTaken(name):
		return "name already taken"
	}
	return ""
}

// validSciper 6 位数字
func validSciper(sciper string) bool {
	if len(sciper) != sciperLength {
		return false
	}
	for _, c := range sciper {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// observerIdentity 观察者没有自己的身份，随机生成一个
func observerIdentity(rng *rand.Rand) (nickname, sciper string) {
	return fmt.Sprintf("%s%d", observerPrefix, 1000+rng.Intn(9000)),
		fmt.Sprintf("%06d", 100000+rng.Intn(900000))
}
