package agent

import (
	"context"
	"testing"

	"trainarena/game"
)

func observation(self game.TrainView, others ...game.TrainView) game.Observation {
	obs := game.Observation{
		Nickname: self.Nickname,
		Width:    400,
		Height:   400,
		CellSize: 20,
		Trains:   map[string]game.TrainView{self.Nickname: self},
		Zone:     game.DeliveryZone{X: 0, Y: 0, Width: 40, Height: 40},
	}
	for _, o := range others {
		obs.Trains[o.Nickname] = o
	}
	return obs
}

func TestGreedyHeadsForPassenger(t *testing.T) {
	self := game.TrainView{Nickname: "bot", Head: game.Point{X: 200, Y: 200}, Direction: game.Right, Alive: true}
	obs := observation(self)
	obs.Passengers = []game.Passenger{{Position: game.Point{X: 200, Y: 100}, Value: 1}}

	if got := (Greedy{}).Decide(context.Background(), obs); got != game.Up {
		t.Fatalf("direction = %v, want up", got)
	}
}

func TestGreedyAvoidsWall(t *testing.T) {
	self := game.TrainView{Nickname: "bot", Head: game.Point{X: 380, Y: 200}, Direction: game.Right, Alive: true}
	got := (Greedy{}).Decide(context.Background(), observation(self))
	if got == game.Right || got == game.Left {
		t.Fatalf("direction = %v, want a turn away from the wall", got)
	}
}

func TestGreedyAvoidsOtherTrain(t *testing.T) {
	self := game.TrainView{Nickname: "bot", Head: game.Point{X: 200, Y: 200}, Direction: game.Right, Alive: true}
	other := game.TrainView{
		Nickname: "other",
		Head:     game.Point{X: 220, Y: 160},
		Wagons:   []game.Point{{X: 220, Y: 180}, {X: 220, Y: 200}, {X: 220, Y: 220}},
		Alive:    true,
	}
	obs := observation(self, other)
	obs.Passengers = []game.Passenger{{Position: game.Point{X: 260, Y: 200}, Value: 3}}

	got := (Greedy{}).Decide(context.Background(), obs)
	if got != game.Up && got != game.Down {
		t.Fatalf("direction = %v, want up or down", got)
	}
}

func TestGreedyReturnsToZoneWithWagons(t *testing.T) {
	self := game.TrainView{
		Nickname:  "bot",
		Head:      game.Point{X: 200, Y: 200},
		Direction: game.Up,
		Wagons:    []game.Point{{X: 200, Y: 220}, {X: 200, Y: 240}, {X: 200, Y: 260}},
		Alive:     true,
	}
	got := (Greedy{}).Decide(context.Background(), observation(self))
	if got != game.Up && got != game.Left {
		t.Fatalf("direction = %v, want toward the zone", got)
	}
}

func TestGreedyDeadTrainKeepsDirection(t *testing.T) {
	self := game.TrainView{Nickname: "bot", Direction: game.Down}
	if got := (Greedy{}).Decide(context.Background(), observation(self)); got != game.Down {
		t.Fatalf("direction = %v", got)
	}
}

func TestFuncAdapter(t *testing.T) {
	var a Agent = Func(func(context.Context, game.Observation) game.Direction { return game.Left })
	if a.Decide(context.Background(), game.Observation{}) != game.Left {
		t.Fatalf("adapter did not forward")
	}
}
