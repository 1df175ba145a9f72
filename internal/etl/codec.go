package etl

import (
	"encoding/json"
	"fmt"

	"orderlake/internal/model"
)

func encodeOrders(rows []model.CleanedOrder) ([][]byte, error) {
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		b, err := json.Marshal(&r)
		if err != nil {
			return nil, fmt.Errorf("encode order %s: %w", r.OrderID, err)
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeOrders(rows [][]byte) ([]model.CleanedOrder, error) {
	out := make([]model.CleanedOrder, 0, len(rows))
	for i, b := range rows {
		var r model.CleanedOrder
		if err := json.Unmarshal(b, &r); err != nil {
			return nil, fmt.Errorf("decode order row %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func encodeMetrics(rows []model.DailyRestaurantMetric) ([][]byte, error) {
	out := make([][]byte, 0, len(rows))
	for _, r := range rows {
		b, err := json.Marshal(&r)
		if err != nil {
			return nil, fmt.Errorf("encode metric %s/%s: %w", r.Name, r.City, err)
		}
		out = append(out, b)
	}
	return out, nil
}
