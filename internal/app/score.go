package app

import "math"

// Attention score bounds and adjustment weights. A fresh student starts at
// MaxAttentionScore and the update rule keeps every result inside the bounds.
const (
	MaxAttentionScore = 1.0
	MinAttentionScore = 0.5

	correctBonus     = 0.1
	incorrectPenalty = 0.05
)

// NextAttentionScore applies the adaptive reinforcement rule to a student's
// attention score after an answer. The bonus for a correct answer grows with
// the student's historical correctness; the penalty for a wrong answer grows
// the lower that history is. totalPolls and correctAnswers are the student's
// qualifying-poll counts so far; current must already lie in
// [MinAttentionScore, MaxAttentionScore].
//
// The result is rounded to 2 decimals, half away from zero, and is always
// inside the bounds.
func NextAttentionScore(current float64, correct bool, totalPolls, correctAnswers int) float64 {
	var correctPercentage float64
	if totalPolls > 0 {
		correctPercentage = float64(correctAnswers) / float64(totalPolls) * 100
	}

	var next float64
	if correct {
		next = math.Min(current+correctBonus*(1+correctPercentage/100), MaxAttentionScore)
	} else {
		next = math.Max(current-incorrectPenalty*(1+(100-correctPercentage)/100), MinAttentionScore)
	}
	return round2(next)
}

// round2 rounds to 2 decimal places, half away from zero.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
