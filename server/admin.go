package server

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/gorilla/websocket"

	"trainarena/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 观战页面可以来自任意来源
		return true
	},
}

// adminRouter 管理与观战接口
//
//	GET /healthz
//	GET /metrics                  传输层计数
//	GET /rooms                    房间列表
//	GET /rooms/{id}/metrics       房间指标与对局统计
//	GET /rooms/{id}/leaderboard   当前排行榜
//	GET /scores                   持久化的最高分
//	GET /ws?room=<id>[&format=msgpack]  观战 WebSocket
func (s *Server) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", s.handleMetrics)
	r.Get("/rooms", s.handleRooms)
	r.Get("/rooms/{id}/metrics", s.handleRoomMetrics)
	r.Get("/rooms/{id}/leaderboard", s.handleRoomLeaderboard)
	r.Get("/scores", s.handleScores)
	r.Get("/scores/{sciper}", s.handleScore)
	r.Get("/ws", s.handleSpectator)
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"sessions": s.sessions.Len(),
		"rooms":    len(s.rooms.List()),
		"metrics":  s.metrics.Snapshot(),
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.rooms.List())
}

func (s *Server) handleRoomMetrics(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"room":    rm.Info(),
		"metrics": rm.MetricsSnapshot(),
	})
}

func (s *Server) handleRoomLeaderboard(w http.ResponseWriter, r *http.Request) {
	rm, ok := s.roomParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, rm.Leaderboard())
}

func (s *Server) handleScores(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Sciper string `json:"sciper"`
		Score  int    `json:"best_score"`
	}
	snap := s.scores.Snapshot()
	out := make([]entry, 0, len(snap))
	for id, score := range snap {
		out = append(out, entry{Sciper: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Sciper < out[j].Sciper
	})
	writeJSON(w, out)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	sciper := chi.URLParam(r, "sciper")
	score, ok := s.scores.Get(sciper)
	if !ok {
		http.Error(w, "score not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"sciper": sciper, "best_score": score})
}

// handleSpectator 观战接入：只接收房间广播
func (s *Server) handleSpectator(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("room")
	if id == "" {
		http.Error(w, "missing room query", http.StatusBadRequest)
		return
	}
	rm, ok := s.rooms.Get(id)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade", "err", err)
		return
	}
	sp := room.NewSpectator(ws, r.URL.Query().Get("format") == "msgpack")
	s.log.Infow("spectator connected", "room", id, "spectator", sp.ID, "request_id", middleware.GetReqID(r.Context()))
	if err := sp.Serve(rm); err != nil {
		s.log.Debugw("spectator closed", "room", id, "spectator", sp.ID, "err", err)
	}
}

func (s *Server) roomParam(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	rm, ok := s.rooms.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
	}
	return rm, ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
