package game

// PassengerMaxValue 乘客价值上限（拾取时获得的车厢数）
const PassengerMaxValue = 3

// Passenger 等待被拾取的乘客
type Passenger struct {
	Position Point `json:"position"`
	Value    int   `json:"value"`
}
