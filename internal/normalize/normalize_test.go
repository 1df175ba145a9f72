package normalize

import (
	"errors"
	"testing"
	"time"

	"orderlake/internal/model"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	n, err := New(DefaultTimestampFormats, loc)
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return n
}

func rawRow() model.RawOrder {
	return model.RawOrder{
		model.FieldOrderID:         "o1",
		model.FieldRestaurantName:  "Pizza Hub",
		model.FieldCity:            "Pune",
		model.FieldOrderTime:       "2024-01-05 10:00:00",
		model.FieldDeliveryTime:    "2024-01-05 10:50:00",
		model.FieldPromisedMinutes: "40",
		model.FieldGMVAmount:       "500",
	}
}

func TestNormalize_LateDeliveryAndDT(t *testing.T) {
	n := testNormalizer(t)
	c, err := n.Normalize(rawRow())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.DT != "2024-01-05" {
		t.Fatalf("dt: got %s want 2024-01-05", c.DT)
	}
	if c.LateDelivery == nil || !*c.LateDelivery {
		t.Fatalf("50 elapsed > 40 promised should be late: %+v", c.LateDelivery)
	}
	if !c.Delivered() || c.DeliveryMinutes() != 50 {
		t.Fatalf("delivery minutes: got %v want 50", c.DeliveryMinutes())
	}
}

func TestNormalize_OnTimeIsNotLate(t *testing.T) {
	n := testNormalizer(t)
	raw := rawRow()
	raw[model.FieldDeliveryTime] = "2024-01-05 10:40:00"
	c, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// Exactly at the promise is on time; late means strictly exceeded.
	if c.LateDelivery == nil || *c.LateDelivery {
		t.Fatalf("exactly 40 of 40 minutes should not be late")
	}
}

func TestNormalize_AbsentDeliveryLeavesFlagsUndefined(t *testing.T) {
	n := testNormalizer(t)
	raw := rawRow()
	delete(raw, model.FieldDeliveryTime)
	c, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if c.DeliveryTime != nil || c.LateDelivery != nil {
		t.Fatalf("undelivered row must keep delivery fields nil: %+v", c)
	}
}

func TestNormalize_FormatListOrderDeterministic(t *testing.T) {
	loc, _ := time.LoadLocation("UTC")
	n, err := New([]string{"2006-01-02 15:04:05", time.RFC3339}, loc)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw := rawRow()
	raw[model.FieldOrderTime] = "2024-01-05T10:00:00Z"
	delete(raw, model.FieldDeliveryTime)
	c1, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize rfc3339: %v", err)
	}
	c2, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("normalize again: %v", err)
	}
	if !c1.OrderTime.Equal(c2.OrderTime) || c1.DT != c2.DT {
		t.Fatalf("repeated normalization diverged: %+v vs %+v", c1, c2)
	}
}

func TestNormalize_CastFailures(t *testing.T) {
	n := testNormalizer(t)
	cases := []struct {
		name  string
		field string
		value string
	}{
		{"unparsable timestamp", model.FieldOrderTime, "05/01/2024 10:00"},
		{"non numeric minutes", model.FieldPromisedMinutes, "forty"},
		{"negative minutes", model.FieldPromisedMinutes, "-5"},
		{"non numeric gmv", model.FieldGMVAmount, "lots"},
		{"negative gmv", model.FieldGMVAmount, "-12.50"},
	}
	for _, tc := range cases {
		raw := rawRow()
		raw[tc.field] = tc.value
		_, err := n.Normalize(raw)
		var ce *CastError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: expected cast error, got %v", tc.name, err)
		}
		if ce.Field != tc.field || ce.RawValue != tc.value {
			t.Fatalf("%s: wrong error detail: %+v", tc.name, ce)
		}
	}
}

func TestNormalize_DeliveryBeforeOrder(t *testing.T) {
	n := testNormalizer(t)
	raw := rawRow()
	raw[model.FieldDeliveryTime] = "2024-01-05 09:00:00"
	_, err := n.Normalize(raw)
	var ce *CastError
	if !errors.As(err, &ce) {
		t.Fatalf("expected cast error, got %v", err)
	}
	if ce.Field != model.FieldDeliveryTime {
		t.Fatalf("error should name delivery_time: %+v", ce)
	}
}

func TestNew_RequiresZoneAndFormats(t *testing.T) {
	if _, err := New(nil, time.UTC); err == nil {
		t.Fatalf("empty format list should fail")
	}
	if _, err := New(DefaultTimestampFormats, nil); err == nil {
		t.Fatalf("nil zone should fail")
	}
}
