package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the load-generator settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
)

// Metrics
var (
	totalRequests uint64
	betsPlaced    uint64
	cashouts      uint64
	conflicts409  uint64
	rejects422    uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
}

func main() {
	flag.Parse()
	log.Printf("Starting Load Run: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// worker hammers the bet/cashout cycle: start a round, watch it briefly,
// then try to cash out before the crash point.
func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		account := pickAccount()
		stake := int64(500)

		key := fmt.Sprintf("load-%d-%d", account, time.Now().UnixNano())
		payload := map[string]interface{}{
			"account_id": account,
			"stake":      stake,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/rounds", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		atomic.AddUint64(&totalRequests, 1)

		var round struct {
			ID int64 `json:"id"`
		}
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&betsPlaced, 1)
			json.NewDecoder(resp.Body).Decode(&round)
		case 409:
			atomic.AddUint64(&conflicts409, 1)
		case 422:
			atomic.AddUint64(&rejects422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()

		if round.ID == 0 {
			continue
		}

		// Let the multiplier climb past the minimum, then cash out.
		time.Sleep(time.Duration(2500+rand.Intn(2000)) * time.Millisecond)

		coReq, _ := http.NewRequest("POST",
			fmt.Sprintf("%s/api/v1/rounds/%d/cashout", targetURL, round.ID), nil)
		coResp, err := client.Do(coReq)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		atomic.AddUint64(&totalRequests, 1)
		switch coResp.StatusCode {
		case 200:
			atomic.AddUint64(&cashouts, 1)
		case 409:
			atomic.AddUint64(&conflicts409, 1)
		case 422:
			atomic.AddUint64(&rejects422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		coResp.Body.Close()
	}
}

func pickAccount() int64 {
	// Assumes 1000 accounts seeded (IDs 1-1000)
	totalAccounts := 1000

	if workload == "hotspot" {
		// Hotspot: 90% of traffic hits the first two accounts, maximizing
		// same-row contention on the one-PLAYING-round constraint.
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1
			}
			return 2
		}
	}
	return int64(rand.Intn(totalAccounts) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	bets := atomic.LoadUint64(&betsPlaced)
	cos := atomic.LoadUint64(&cashouts)
	f409 := atomic.LoadUint64(&conflicts409)
	f422 := atomic.LoadUint64(&rejects422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": tps,
		"bets_placed":    bets,
		"cashouts":       cos,
		"conflicts":      f409,
		"rejects":        f422,
		"errors":         fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
