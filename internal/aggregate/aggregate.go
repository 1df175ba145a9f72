package aggregate

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"orderlake/internal/model"
	"orderlake/internal/money"
)

// Error aborts aggregation for one dt partition. The silver data for that
// date stays valid; only the gold refresh for it fails.
type Error struct {
	DT    string
	Cause string
}

func (e *Error) Error() string { return fmt.Sprintf("aggregate dt=%s: %s", e.DT, e.Cause) }

// GroupKey identifies one gold row.
type GroupKey struct {
	DT   string
	Name string
	City string
}

// Partial is the mergeable per-group state. Every field is combined with an
// associative, commutative operator (count or sum), so partials computed
// over disjoint row subsets merge in any order to the same result. Ratios
// are divided only in Finalize; dividing inside the reduction would make
// the outcome depend on how work was chunked.
type Partial struct {
	Rows            int64
	OrdersDelivered int64
	GMV             money.Decimal
	DeliverySumMins float64
	LateCount       int64
}

// Add folds one cleaned row into the partial. Undelivered rows contribute
// GMV only: they count toward neither orders_delivered nor late_count.
func (p *Partial) Add(c model.CleanedOrder) {
	p.Rows++
	p.GMV = p.GMV.Add(c.GMVAmount)
	if !c.Delivered() {
		return
	}
	p.OrdersDelivered++
	p.DeliverySumMins += c.DeliveryMinutes()
	if c.LateDelivery != nil && *c.LateDelivery {
		p.LateCount++
	}
}

// Merge combines another partial into p.
func (p *Partial) Merge(o Partial) {
	p.Rows += o.Rows
	p.OrdersDelivered += o.OrdersDelivered
	p.GMV = p.GMV.Add(o.GMV)
	p.DeliverySumMins += o.DeliverySumMins
	p.LateCount += o.LateCount
}

// Finalize divides once, producing the gold row. avg_delivery_mins and
// late_rate stay nil when no order was delivered: undefined, not zero.
func (p Partial) Finalize(k GroupKey) (model.DailyRestaurantMetric, error) {
	if p.LateCount > p.OrdersDelivered {
		return model.DailyRestaurantMetric{}, &Error{DT: k.DT, Cause: fmt.Sprintf("group %s/%s: late_count %d exceeds orders_delivered %d", k.Name, k.City, p.LateCount, p.OrdersDelivered)}
	}
	gmv, err := p.GMV.Float64()
	if err != nil {
		return model.DailyRestaurantMetric{}, &Error{DT: k.DT, Cause: err.Error()}
	}
	m := model.DailyRestaurantMetric{
		DT:              k.DT,
		Name:            k.Name,
		City:            k.City,
		OrdersDelivered: p.OrdersDelivered,
		GMV:             gmv,
		LateCount:       p.LateCount,
	}
	if p.OrdersDelivered > 0 {
		avg := p.DeliverySumMins / float64(p.OrdersDelivered)
		rate := float64(p.LateCount) / float64(p.OrdersDelivered)
		m.AvgDeliveryMins = &avg
		m.LateRate = &rate
	}
	for _, v := range []float64{m.GMV, p.DeliverySumMins} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.DailyRestaurantMetric{}, &Error{DT: k.DT, Cause: fmt.Sprintf("group %s/%s: non-finite aggregate", k.Name, k.City)}
		}
	}
	return m, nil
}

// Partition reduces the full cleaned-order set of one dt partition into gold
// rows. Rows are split into chunks reduced by independent workers; each
// worker builds per-group partials, which are then merged and finalized.
// Output is identical for any chunk count.
func Partition(dt string, rows []model.CleanedOrder, chunks int) ([]model.DailyRestaurantMetric, error) {
	if chunks <= 0 {
		chunks = 1
	}
	for _, c := range rows {
		if c.DT != dt {
			return nil, &Error{DT: dt, Cause: fmt.Sprintf("row %s carries dt %s", c.OrderID, c.DT)}
		}
		if c.RestaurantName == "" || c.City == "" {
			return nil, &Error{DT: dt, Cause: fmt.Sprintf("row %s has empty group key", c.OrderID)}
		}
	}

	parts := make([]map[GroupKey]*Partial, chunks)
	var wg sync.WaitGroup
	for i := 0; i < chunks; i++ {
		lo := len(rows) * i / chunks
		hi := len(rows) * (i + 1) / chunks
		i, slice := i, rows[lo:hi]
		wg.Add(1)
		go func() {
			defer wg.Done()
			parts[i] = reduceChunk(slice)
		}()
	}
	wg.Wait()

	merged := make(map[GroupKey]*Partial)
	for _, part := range parts {
		for k, p := range part {
			if cur, ok := merged[k]; ok {
				cur.Merge(*p)
			} else {
				cp := *p
				merged[k] = &cp
			}
		}
	}

	out := make([]model.DailyRestaurantMetric, 0, len(merged))
	for k, p := range merged {
		m, err := p.Finalize(k)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].City < out[j].City
	})
	return out, nil
}

func reduceChunk(rows []model.CleanedOrder) map[GroupKey]*Partial {
	part := make(map[GroupKey]*Partial)
	for _, c := range rows {
		k := GroupKey{DT: c.DT, Name: c.RestaurantName, City: c.City}
		p, ok := part[k]
		if !ok {
			p = &Partial{}
			part[k] = p
		}
		p.Add(c)
	}
	return part
}
