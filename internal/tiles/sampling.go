package tiles

// MaxVisRank is the sentinel "always visible" threshold, matching the value
// stored in sightings.vis_rank.
const MaxVisRank = 10000

// TileExtent is the MVT tile-local coordinate space side length.
const TileExtent = 4096

// samplingTier describes the visibility threshold and row cap for one zoom
// band.
type samplingTier struct {
	minZoom        int
	visRankBelow   int
	maxPoints      int
}

var samplingTiers = []samplingTier{
	{minZoom: 0, visRankBelow: 100, maxPoints: 5_000},
	{minZoom: 3, visRankBelow: 1_000, maxPoints: 10_000},
	{minZoom: 5, visRankBelow: 5_000, maxPoints: 25_000},
	{minZoom: 8, visRankBelow: MaxVisRank + 1, maxPoints: 100_000},
}

// SamplingFor returns (visRankThreshold, maxPoints) for a zoom level. At
// z >= 8 the threshold equals MaxVisRank+1, meaning "no predicate" — callers
// should drop the vis_rank filter entirely rather than compare against it.
func SamplingFor(z int) (visRankThreshold, maxPoints int) {
	tier := samplingTiers[0]
	for _, t := range samplingTiers {
		if z >= t.minZoom {
			tier = t
		}
	}
	return tier.visRankBelow, tier.maxPoints
}

// CandidateCap bounds the geo-index candidate set at z >= 8, per spec:
// max_points * 4, capped at 1,000,000.
func CandidateCap(maxPoints int) int {
	n := maxPoints * 4
	if n > 1_000_000 {
		n = 1_000_000
	}
	return n
}

// HighZoom reports whether z is in the "all points, geo-index bounded"
// band (z >= 8), where the vis_rank predicate is dropped.
func HighZoom(z int) bool {
	return z >= 8
}
