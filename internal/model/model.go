package model

import (
	"time"

	"orderlake/internal/money"
)

// Field names of the raw order schema as they appear in the bronze tier.
const (
	FieldOrderID         = "order_id"
	FieldRestaurantName  = "restaurant_name"
	FieldCity            = "city"
	FieldOrderTime       = "order_time"
	FieldDeliveryTime    = "delivery_time"
	FieldPromisedMinutes = "promised_delivery_minutes"
	FieldGMVAmount       = "gmv_amount"
)

// RequiredFields lists every field a raw row must carry non-empty.
// delivery_time is optional: an order may be undelivered or cancelled.
var RequiredFields = []string{
	FieldOrderID,
	FieldRestaurantName,
	FieldCity,
	FieldOrderTime,
	FieldPromisedMinutes,
	FieldGMVAmount,
}

// RawOrder is one bronze row, header-mapped, untyped. Never mutated.
type RawOrder map[string]string

// CleanedOrder is the silver-tier typed projection of a RawOrder.
// DeliveryTime and LateDelivery are absent (nil) for undelivered orders,
// never zero values standing in for null.
type CleanedOrder struct {
	OrderID         string        `json:"order_id"`
	RestaurantName  string        `json:"restaurant_name"`
	City            string        `json:"city"`
	OrderTime       time.Time     `json:"order_time"`
	DeliveryTime    *time.Time    `json:"delivery_time,omitempty"`
	PromisedMinutes int64         `json:"promised_delivery_minutes"`
	GMVAmount       money.Decimal `json:"gmv_amount"`
	DT              string        `json:"dt"`
	LateDelivery    *bool         `json:"late_delivery,omitempty"`
}

// Delivered reports whether the order reached the customer.
func (c CleanedOrder) Delivered() bool { return c.DeliveryTime != nil }

// DeliveryMinutes returns elapsed minutes between order and delivery.
// Only meaningful when Delivered().
func (c CleanedOrder) DeliveryMinutes() float64 {
	if c.DeliveryTime == nil {
		return 0
	}
	return c.DeliveryTime.Sub(c.OrderTime).Minutes()
}

// DailyRestaurantMetric is one gold row per (dt, name, city). The field set
// and names are a compatibility contract with the downstream query engine.
// AvgDeliveryMins and LateRate are null when OrdersDelivered is zero.
type DailyRestaurantMetric struct {
	DT              string   `json:"dt"`
	Name            string   `json:"name"`
	City            string   `json:"city"`
	OrdersDelivered int64    `json:"orders_delivered"`
	GMV             float64  `json:"gmv"`
	AvgDeliveryMins *float64 `json:"avg_delivery_mins"`
	LateCount       int64    `json:"late_count"`
	LateRate        *float64 `json:"late_rate"`
}
