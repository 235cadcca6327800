// Package enrichment builds and stores the postcode to socioeconomic index
// lookup table joined into downstream feature engineering.
package enrichment

import "math/rand/v2"

// Postcode range covered by the table, [MinPostcode, MaxPostcode)
const (
	MinPostcode = 10000
	MaxPostcode = 99999
)

// Row is one enrichment table entry
type Row struct {
	Postcode         int `dynamodbav:"postcode"`
	SocioeconomicIdx int `dynamodbav:"socioeconomic_idx"`
}

// SocioeconomicIndex draws an index for a postcode. The range depends on the
// postcode's remainder mod 3: 0 → [3,5], 1 → [1,3], 2 → [5,7].
func SocioeconomicIndex(rng *rand.Rand, postcode int) int {
	lo, hi := IndexRange(postcode)
	return lo + rng.IntN(hi-lo+1)
}

// IndexRange returns the inclusive index bounds for a postcode
func IndexRange(postcode int) (lo, hi int) {
	switch postcode % 3 {
	case 0:
		return 3, 5
	case 1:
		return 1, 3
	default:
		return 5, 7
	}
}

// BuildRows returns one row for every postcode in [MinPostcode, MaxPostcode)
func BuildRows(rng *rand.Rand) []Row {
	rows := make([]Row, 0, MaxPostcode-MinPostcode)
	for pc := MinPostcode; pc < MaxPostcode; pc++ {
		rows = append(rows, Row{Postcode: pc, SocioeconomicIdx: SocioeconomicIndex(rng, pc)})
	}
	return rows
}
