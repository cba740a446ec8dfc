package model

// FeatureKind identifies which musical attribute an analysis targets.
type FeatureKind string

const (
	FeatureTempo FeatureKind = "tempo"
	FeatureKey   FeatureKind = "key"
)

// Valid reports whether the feature kind is one the engine understands.
func (f FeatureKind) Valid() bool {
	return f == FeatureTempo || f == FeatureKey
}

// AllFeatures lists every supported feature kind in canonical order.
func AllFeatures() []FeatureKind {
	return []FeatureKind{FeatureTempo, FeatureKey}
}
