package catalog

import (
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/shopscout-tw/shopscout/engine/domain"
)

// Predicate selects documents by scalar fields. The zero value matches
// everything. Price bounds are inclusive; OlderThan is strict.
type Predicate struct {
	Site         domain.Site
	Keyword      string
	PriceFloor   *float64
	PriceCeiling *float64
	OlderThan    *time.Time
}

// IsEmpty reports whether the predicate constrains nothing.
func (p Predicate) IsEmpty() bool {
	return p.Site == "" && p.Keyword == "" &&
		p.PriceFloor == nil && p.PriceCeiling == nil && p.OlderThan == nil
}

// filter compiles the predicate to a qdrant filter, or nil when empty.
func (p Predicate) filter() *pb.Filter {
	if p.IsEmpty() {
		return nil
	}

	var must []*pb.Condition
	if p.Site != "" {
		must = append(must, keywordMatch(fieldSite, string(p.Site)))
	}
	if p.Keyword != "" {
		must = append(must, keywordMatch(fieldKeyword, p.Keyword))
	}
	if p.PriceFloor != nil || p.PriceCeiling != nil {
		rng := &pb.Range{Gte: p.PriceFloor, Lte: p.PriceCeiling}
		must = append(must, fieldRange(fieldPrice, rng))
	}
	if p.OlderThan != nil {
		cutoff := float64(p.OlderThan.Unix())
		must = append(must, fieldRange(fieldTimestamp, &pb.Range{Lt: &cutoff}))
	}
	return &pb.Filter{Must: must}
}

func keywordMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func fieldRange(key string, rng *pb.Range) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Range: rng,
			},
		},
	}
}
