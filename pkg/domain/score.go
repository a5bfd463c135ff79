package domain

// ScoreFakeMode selects what the metrics container scores against.
type ScoreFakeMode int

const (
	// score predictions against the real labels.
	ScoreFakeNone ScoreFakeMode = 0

	// score predictions against synthetic labels; used when the dataset is
	// remote and its raw samples must not be materialized locally.
	ScoreFakeLabels ScoreFakeMode = 1
)
