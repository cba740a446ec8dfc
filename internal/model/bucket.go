package model

// ConfidenceBucket is a coarse presentation label for a numeric
// confidence. It lives outside the consensus engine so the thresholds
// can change without touching scoring.
type ConfidenceBucket string

const (
	BucketHigh       ConfidenceBucket = "high"
	BucketMedium     ConfidenceBucket = "medium"
	BucketLow        ConfidenceBucket = "low"
	BucketUnanalyzed ConfidenceBucket = "not_analyzed"
)

// BucketFor maps a confidence score to its display bucket. A nil
// confidence means the feature was never analyzed, which is distinct
// from a low score.
func BucketFor(confidence *float64) ConfidenceBucket {
	if confidence == nil {
		return BucketUnanalyzed
	}
	switch {
	case *confidence >= 80:
		return BucketHigh
	case *confidence >= 50:
		return BucketMedium
	default:
		return BucketLow
	}
}
