package integer

import (
	"errors"
	"fmt"
	"math/big"
	"math/rand"
)

// Distribution describes how a template variable is randomized. The set of
// shapes is closed: Single, Interval, Weighted and Composite.
type Distribution interface {
	// Domain returns every value the distribution can produce.
	Domain() *Domain
	// Sample draws one value.
	Sample(rnd *rand.Rand) *big.Int
	// Accept dispatches to the matching visitor method.
	Accept(v DistributionVisitor) error

	distribution()
}

// DistributionVisitor handles each distribution shape.
type DistributionVisitor interface {
	VisitSingle(d Single) error
	VisitInterval(d Interval) error
	VisitWeighted(d Weighted) error
	VisitComposite(d Composite) error
}

// Single always produces Value.
type Single struct {
	Value *big.Int
}

func (d Single) Domain() *Domain                    { return NewValueDomain(d.Value) }
func (d Single) Sample(*rand.Rand) *big.Int         { return new(big.Int).Set(d.Value) }
func (d Single) Accept(v DistributionVisitor) error { return v.VisitSingle(d) }
func (Single) distribution()                        {}
func (d Single) String() string                     { return d.Value.String() }

// Interval draws uniformly from Range.
type Interval struct {
	Range Range
}

func (d Interval) Domain() *Domain { return &Domain{ranges: []Range{d.Range}} }

func (d Interval) Sample(rnd *rand.Rand) *big.Int {
	offset := new(big.Int).Rand(rnd, d.Range.Size())
	return offset.Add(offset, d.Range.min)
}

func (d Interval) Accept(v DistributionVisitor) error { return v.VisitInterval(d) }
func (Interval) distribution()                        {}
func (d Interval) String() string                     { return d.Range.String() }

// WeightedItem is one alternative of a Weighted distribution.
type WeightedItem struct {
	Weight int
	Value  Distribution
}

// Weighted picks an alternative proportionally to its weight.
type Weighted struct {
	Items []WeightedItem
}

// NewWeighted validates the weights.
func NewWeighted(items ...WeightedItem) (Weighted, error) {
	if len(items) == 0 {
		return Weighted{}, errors.New("weighted distribution needs at least one item")
	}
	total := 0
	for i, item := range items {
		if item.Weight < 0 {
			return Weighted{}, fmt.Errorf("weighted item %d: negative weight %d", i, item.Weight)
		}
		if item.Value == nil {
			return Weighted{}, fmt.Errorf("weighted item %d: nil value", i)
		}
		total += item.Weight
	}
	if total == 0 {
		return Weighted{}, errors.New("weighted distribution has zero total weight")
	}
	return Weighted{Items: items}, nil
}

func (d Weighted) Domain() *Domain {
	domain := EmptyDomain()
	for _, item := range d.Items {
		if item.Weight > 0 {
			domain.IncludeDomain(item.Value.Domain())
		}
	}
	return domain
}

func (d Weighted) Sample(rnd *rand.Rand) *big.Int {
	total := 0
	for _, item := range d.Items {
		total += item.Weight
	}
	pick := rnd.Intn(total)
	for _, item := range d.Items {
		if pick < item.Weight {
			return item.Value.Sample(rnd)
		}
		pick -= item.Weight
	}
	return d.Items[len(d.Items)-1].Value.Sample(rnd)
}

func (d Weighted) Accept(v DistributionVisitor) error { return v.VisitWeighted(d) }
func (Weighted) distribution()                        {}

// Composite draws uniformly among its parts.
type Composite struct {
	Parts []Distribution
}

func (d Composite) Domain() *Domain {
	domain := EmptyDomain()
	for _, part := range d.Parts {
		domain.IncludeDomain(part.Domain())
	}
	return domain
}

func (d Composite) Sample(rnd *rand.Rand) *big.Int {
	return d.Parts[rnd.Intn(len(d.Parts))].Sample(rnd)
}

func (d Composite) Accept(v DistributionVisitor) error { return v.VisitComposite(d) }
func (Composite) distribution()                        {}

// Values lists every value a distribution can produce, up to limit values.
// ok is false when the distribution is larger than limit.
func Values(d Distribution, limit int) ([]*big.Int, bool) {
	domain := d.Domain()
	if domain.Size().Cmp(big.NewInt(int64(limit))) > 0 {
		return nil, false
	}
	values := make([]*big.Int, 0, limit)
	it := domain.Values()
	for v, ok := it.Next(); ok; v, ok = it.Next() {
		values = append(values, v)
	}
	return values, true
}
