package verification

// Weights balance the criteria of a composite verification score.
type Weights struct {
	Accuracy   float64
	Completion float64
	Runtime    float64
}

// Scores are per-criterion scores in [0, 1].
type Scores struct {
	Accuracy   float64 `json:"accuracy"`
	Completion float64 `json:"completion"`
	Runtime    float64 `json:"runtime"`
}

var DefaultWeights = Weights{
	Accuracy:   0.6,
	Completion: 0.3,
	Runtime:    0.1,
}

func CompositeScore(scores Scores, weights Weights) float64 {
	if weights.Accuracy == 0 && weights.Completion == 0 && weights.Runtime == 0 {
		weights = DefaultWeights
	}
	total := weights.Accuracy + weights.Completion + weights.Runtime
	if total == 0 {
		return 0
	}
	return (scores.Accuracy*weights.Accuracy +
		scores.Completion*weights.Completion +
		scores.Runtime*weights.Runtime) / total
}

// AccuracyScore maps a relative error onto [0, 1]: 1 at zero error, 0 at or
// beyond tolerance.
func AccuracyScore(m Metrics, tolerance float64) float64 {
	if tolerance <= 0 {
		if m.L2Relative == 0 {
			return 1
		}
		return 0
	}
	s := 1 - m.L2Relative/tolerance
	if s < 0 {
		return 0
	}
	return s
}

// CompletionScore is 1 for a job that finished with error code 0.
func CompletionScore(errorCode int) float64 {
	if errorCode == 0 {
		return 1
	}
	return 0
}

// RuntimeScore maps a run time onto [0, 1] against a budget in seconds: 1 for
// an instant run, 0 at or beyond the budget. Without a budget every run scores 1.
func RuntimeScore(seconds, budget float64) float64 {
	if budget <= 0 {
		return 1
	}
	s := 1 - seconds/budget
	if s < 0 {
		return 0
	}
	return s
}
