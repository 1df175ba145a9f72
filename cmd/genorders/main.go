package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"orderlake/internal/bronze"
	"orderlake/internal/model"
)

var header = []string{
	model.FieldOrderID,
	model.FieldRestaurantName,
	model.FieldCity,
	model.FieldOrderTime,
	model.FieldDeliveryTime,
	model.FieldPromisedMinutes,
	model.FieldGMVAmount,
}

func main() {
	var (
		count     int
		days      int
		outputDir string
		badRatio  float64
		seed      int64
	)
	flag.IntVar(&count, "count", 500, "number of orders to generate")
	flag.IntVar(&days, "days", 3, "number of order dates to spread over")
	flag.StringVar(&outputDir, "output", "./bronze", "bronze root directory")
	flag.Float64Var(&badRatio, "bad-ratio", 0.05, "share of deliberately malformed rows")
	flag.Int64Var(&seed, "seed", 0, "rng seed; 0 uses current time")
	flag.Parse()

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if err := generate(count, days, outputDir, badRatio, rand.New(rand.NewSource(seed))); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(count, days int, outputDir string, badRatio float64, rng *rand.Rand) error {
	restaurants := []struct{ name, city string }{
		{"Pizza Hub", "Pune"},
		{"Wok Star", "Mumbai"},
		{"Dosa Den", "Pune"},
		{"Biryani Bay", "Hyderabad"},
		{"Roll Call", "Mumbai"},
	}
	base := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

	byDay := make(map[string][][]string)
	for i := 0; i < count; i++ {
		r := restaurants[rng.Intn(len(restaurants))]
		day := base.AddDate(0, 0, rng.Intn(days))
		orderTime := day.Add(time.Duration(rng.Intn(12*60)) * time.Minute)
		promised := 25 + rng.Intn(30)
		gmv := fmt.Sprintf("%d.%02d", 100+rng.Intn(900), rng.Intn(100))

		delivery := ""
		if rng.Float64() < 0.85 {
			elapsed := promised - 10 + rng.Intn(30) // some on time, some late
			delivery = orderTime.Add(time.Duration(elapsed) * time.Minute).Format("2006-01-02 15:04:05")
		}
		rec := []string{
			fmt.Sprintf("o%06d", i+1),
			r.name,
			r.city,
			orderTime.Format("2006-01-02 15:04:05"),
			delivery,
			fmt.Sprintf("%d", promised),
			gmv,
		}
		if rng.Float64() < badRatio {
			corrupt(rec, rng)
		}
		key := day.Format("2006-01-02")
		byDay[key] = append(byDay[key], rec)
	}

	total := 0
	for day, recs := range byDay {
		path := filepath.Join(outputDir, "orders", day, "orders.csv")
		if err := bronze.WriteFile(path, header, recs); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		total += len(recs)
	}
	log.Printf("generated %d orders across %d days under %s", total, len(byDay), outputDir)
	return nil
}

// corrupt makes a row fail either schema validation or type casting.
func corrupt(rec []string, rng *rand.Rand) {
	switch rng.Intn(4) {
	case 0:
		rec[6] = "" // empty gmv_amount
	case 1:
		rec[1] = "" // empty restaurant_name
	case 2:
		rec[3] = "05/01/2024 10:00" // unaccepted timestamp format
	case 3:
		rec[5] = "-10" // negative promised minutes
	}
}
