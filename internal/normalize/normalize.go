package normalize

import (
	"fmt"
	"strconv"
	"time"

	"orderlake/internal/model"
	"orderlake/internal/money"
)

// DefaultTimestampFormats is the out-of-the-box accepted format list.
// First match wins; order is part of the typing contract.
var DefaultTimestampFormats = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// CastError reports a field whose raw value could not be typed. The row is
// quarantined, never silently coerced or dropped.
type CastError struct {
	Field    string
	RawValue string
	Cause    string
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast: field %s value %q: %s", e.Field, e.RawValue, e.Cause)
}

// Normalizer types validated raw rows. It is a pure function of the raw
// values and its configuration: the same input always yields the same
// CleanedOrder or the same CastError, across runs and machines.
type Normalizer struct {
	formats []string
	loc     *time.Location
}

// New builds a Normalizer. The reference zone must be passed explicitly;
// dt derivation never consults the host environment.
func New(formats []string, loc *time.Location) (*Normalizer, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("normalize: empty timestamp format list")
	}
	if loc == nil {
		return nil, fmt.Errorf("normalize: reference time zone is required")
	}
	return &Normalizer{formats: formats, loc: loc}, nil
}

// Normalize casts a validated raw row to a CleanedOrder, computing the
// late-delivery flag and the dt partition key.
func (n *Normalizer) Normalize(raw model.RawOrder) (model.CleanedOrder, error) {
	orderTime, err := n.parseTime(model.FieldOrderTime, raw[model.FieldOrderTime])
	if err != nil {
		return model.CleanedOrder{}, err
	}

	var deliveryTime *time.Time
	if v, ok := raw[model.FieldDeliveryTime]; ok && v != "" {
		ts, err := n.parseTime(model.FieldDeliveryTime, v)
		if err != nil {
			return model.CleanedOrder{}, err
		}
		if ts.Before(orderTime) {
			return model.CleanedOrder{}, &CastError{
				Field:    model.FieldDeliveryTime,
				RawValue: v,
				Cause:    "delivery before order",
			}
		}
		deliveryTime = &ts
	}

	promisedRaw := raw[model.FieldPromisedMinutes]
	promised, err := strconv.ParseInt(promisedRaw, 10, 64)
	if err != nil {
		return model.CleanedOrder{}, &CastError{
			Field:    model.FieldPromisedMinutes,
			RawValue: promisedRaw,
			Cause:    "not an integer",
		}
	}
	if promised < 0 {
		return model.CleanedOrder{}, &CastError{
			Field:    model.FieldPromisedMinutes,
			RawValue: promisedRaw,
			Cause:    "negative",
		}
	}

	gmvRaw := raw[model.FieldGMVAmount]
	gmv, err := money.Parse(gmvRaw)
	if err != nil {
		return model.CleanedOrder{}, &CastError{
			Field:    model.FieldGMVAmount,
			RawValue: gmvRaw,
			Cause:    "not a decimal",
		}
	}
	if gmv.Negative() {
		return model.CleanedOrder{}, &CastError{
			Field:    model.FieldGMVAmount,
			RawValue: gmvRaw,
			Cause:    "negative",
		}
	}

	c := model.CleanedOrder{
		OrderID:         raw[model.FieldOrderID],
		RestaurantName:  raw[model.FieldRestaurantName],
		City:            raw[model.FieldCity],
		OrderTime:       orderTime,
		DeliveryTime:    deliveryTime,
		PromisedMinutes: promised,
		GMVAmount:       gmv,
		DT:              orderTime.In(n.loc).Format("2006-01-02"),
	}
	if deliveryTime != nil {
		late := deliveryTime.Sub(orderTime) > time.Duration(promised)*time.Minute
		c.LateDelivery = &late
	}
	return c, nil
}

// parseTime tries the configured formats in order; the first match wins.
func (n *Normalizer) parseTime(field, raw string) (time.Time, error) {
	for _, f := range n.formats {
		if ts, err := time.ParseInLocation(f, raw, n.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &CastError{Field: field, RawValue: raw, Cause: "no format matched"}
}
