package game

import "math"

// Score counts resolved hits and attacks sent by the local player.
type Score struct {
	Hits  int `json:"hits"`
	Moves int `json:"moves"`
}

// BasePoints はヒット数を1万点単位に換算
func (s Score) BasePoints() int {
	return s.Hits * 10000
}

// Accuracy is hits/moves as a percentage rounded to 2 decimals, 0 with no moves.
func (s Score) Accuracy() float64 {
	if s.Moves == 0 {
		return 0
	}
	accuracy := float64(s.Hits) / float64(s.Moves) * 100
	return math.Round(accuracy*100) / 100
}

// Total adds an accuracy bonus of hits×accuracy to the base points.
func (s Score) Total() int {
	bonus := float64(s.Hits) * s.Accuracy()
	return int(float64(s.BasePoints()) + bonus)
}

// ScoreCard is the read-only view of a Score shown to the player.
type ScoreCard struct {
	Hits     int     `json:"hits"`
	Moves    int     `json:"moves"`
	Base     int     `json:"base"`
	Accuracy float64 `json:"accuracy"`
	Total    int     `json:"total"`
}

func (s Score) Card() ScoreCard {
	return ScoreCard{
		Hits:     s.Hits,
		Moves:    s.Moves,
		Base:     s.BasePoints(),
		Accuracy: s.Accuracy(),
		Total:    s.Total(),
	}
}
