// apitest checks a Tushare token against a few cheap endpoints.
// Usage: TUSHARE_TOKEN=... go run ./cmd/apitest
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rickgao/ashare-data/internal/api"
	"github.com/rickgao/ashare-data/internal/calendar"
	"github.com/rickgao/ashare-data/internal/config"
	"github.com/rickgao/ashare-data/internal/model"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatal(err)
	}
	token := os.Getenv("TUSHARE_TOKEN")
	if token == "" {
		log.Fatal("TUSHARE_TOKEN is not set")
	}
	url := os.Getenv("TUSHARE_URL")
	if url == "" {
		url = config.DefaultTushareURL
	}

	client := api.NewClient(url, token,
		api.WithTimeout(30*time.Second),
		api.WithRetries(2, time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Test 1: Trade calendar
	fmt.Println("=== Testing trade_cal ===")
	now := time.Now()
	start := now.AddDate(0, 0, -10).Format(calendar.Layout)
	end := now.Format(calendar.Layout)
	cal, err := client.TradeCal(ctx, "SSE", start, end)
	if err != nil {
		log.Fatalf("trade_cal failed: %v", err)
	}
	var days []model.CalendarDay
	for i := range cal.Len() {
		r := cal.Row(i)
		days = append(days, model.CalendarDay{Date: r.Text("cal_date"), IsOpen: r.Text("is_open") == "1"})
	}
	open := calendar.OpenDates(days, "", "")
	fmt.Printf("Fetched %d days, %d open\n", cal.Len(), len(open))

	latest, err := calendar.NearestBefore(calendar.Yesterday(now), open)
	if err != nil {
		log.Fatalf("no open day before yesterday: %v", err)
	}
	fmt.Printf("Latest open day: %s\n", latest)

	// Test 2: Stock list
	fmt.Println("\n=== Testing stock_basic ===")
	stocks, err := client.StockBasic(ctx, "L")
	if err != nil {
		log.Fatalf("stock_basic failed: %v", err)
	}
	fmt.Printf("Fetched %d listed stocks\n", stocks.Len())
	for i := range min(stocks.Len(), 5) {
		r := stocks.Row(i)
		fmt.Printf("  %d. %s - %s (%s)\n", i+1, r.Text("ts_code"), r.Text("name"), r.Text("list_date"))
	}

	// Test 3: Daily bars of the latest open day
	fmt.Printf("\n=== Testing daily (%s) ===\n", latest)
	bars, err := client.Daily(ctx, latest)
	if err != nil {
		log.Fatalf("daily failed: %v", err)
	}
	fmt.Printf("Fetched %d bars\n", bars.Len())

	fmt.Println("\n=== All API tests passed! ===")
}
