// Command publisher is a load generator for the aggregator's HTTP surface.
// It is not part of the core system spec.md §1 describes; it exists so a
// freshly cloned repo has something to point at a running instance. Adapted
// from the teacher's dev/simulator.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

var (
	targetURL    = getenv("PUBLISHER_TARGET_URL", "http://localhost:8080")
	topics       = strings.Split(getenv("PUBLISHER_TOPICS", "app-logs,auth-events,payment-events"), ",")
	sources      = strings.Split(getenv("PUBLISHER_SOURCES", "web-server,worker,api-gateway"), ",")
	eventCount   = getenvInt("PUBLISHER_EVENT_COUNT", 1000)
	batchSize    = getenvInt("PUBLISHER_BATCH_SIZE", 50)
	duplicateRate = getenvFloat("PUBLISHER_DUPLICATE_RATE", 0.2)
	delayMS      = getenvInt("PUBLISHER_DELAY_MS", 0)
)

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

var messages = []string{
	"User authentication successful",
	"Database connection established",
	"Request processed successfully",
	"Cache miss, fetching from database",
	"Configuration reloaded",
	"Background job completed",
	"API rate limit reached",
	"Session timeout detected",
}

type event struct {
	Topic     string                 `json:"topic"`
	EventID   string                 `json:"event_id"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
}

type generator struct {
	seen []event
}

func (g *generator) next() event {
	if len(g.seen) > 0 && rand.Float64() < duplicateRate {
		return g.seen[rand.Intn(len(g.seen))]
	}

	ev := event{
		Topic:     topics[rand.Intn(len(topics))],
		EventID:   "evt-" + uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    sources[rand.Intn(len(sources))],
		Payload: map[string]interface{}{
			"level":       logLevels[rand.Intn(len(logLevels))],
			"message":     messages[rand.Intn(len(messages))],
			"duration_ms": rand.Intn(500) + 1,
		},
	}

	g.seen = append(g.seen, ev)
	if len(g.seen) > 1000 {
		g.seen = g.seen[len(g.seen)-500:]
	}
	return ev
}

type stats struct {
	totalSent         int
	uniqueProcessed   int
	duplicatesDropped int
	failed            int
}

func postJSON(path string, body interface{}) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	return client.Post(targetURL+path, "application/json", bytes.NewReader(buf))
}

func waitForAggregator(maxRetries int, delay time.Duration) bool {
	log.Printf("waiting for aggregator at %s", targetURL)
	client := &http.Client{Timeout: 5 * time.Second}
	for i := 0; i < maxRetries; i++ {
		resp, err := client.Get(targetURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				log.Println("aggregator is ready")
				return true
			}
		}
		time.Sleep(delay)
	}
	log.Println("aggregator did not become ready in time")
	return false
}

func runBatchMode(g *generator, s *stats) {
	remaining := eventCount
	batchesSent := 0

	for remaining > 0 {
		size := batchSize
		if size > remaining {
			size = remaining
		}

		events := make([]event, size)
		for i := range events {
			events[i] = g.next()
		}

		resp, err := postJSON("/publish/batch", map[string]interface{}{"events": events})
		if err != nil {
			log.Printf("batch publish error: %v", err)
			s.failed += size
		} else {
			var result struct {
				UniqueProcessed   int `json:"unique_processed"`
				DuplicatesDropped int `json:"duplicates_dropped"`
				Failed            int `json:"failed"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
				s.uniqueProcessed += result.UniqueProcessed
				s.duplicatesDropped += result.DuplicatesDropped
				s.failed += result.Failed
			}
			resp.Body.Close()
		}

		s.totalSent += size
		remaining -= size
		batchesSent++

		if batchesSent%10 == 0 {
			log.Printf("progress: %d/%d events sent", s.totalSent, eventCount)
		}
		if delayMS > 0 {
			time.Sleep(time.Duration(delayMS) * time.Millisecond)
		}
	}
}

func main() {
	rand.Seed(time.Now().UnixNano())

	log.Println(strings.Repeat("=", 60))
	log.Println("event publisher starting")
	log.Printf("target: %s  events: %d  batch size: %d  duplicate rate: %.0f%%",
		targetURL, eventCount, batchSize, duplicateRate*100)
	log.Println(strings.Repeat("=", 60))

	if !waitForAggregator(30, 2*time.Second) {
		log.Fatal("exiting: aggregator not available")
	}

	g := &generator{}
	s := &stats{}
	start := time.Now()

	runBatchMode(g, s)

	log.Println(strings.Repeat("=", 60))
	log.Println("publishing complete")
	log.Printf("total sent: %d  unique: %d  duplicates: %d  failed: %d",
		s.totalSent, s.uniqueProcessed, s.duplicatesDropped, s.failed)
	log.Printf("duration: %s  throughput: %.1f events/sec",
		time.Since(start).Round(time.Millisecond), float64(s.totalSent)/time.Since(start).Seconds())
	log.Println(strings.Repeat("=", 60))

	fmt.Println("done")
}
