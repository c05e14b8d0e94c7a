// Ping the MEXC REST and WebSocket endpoints to measure network latency
// from this host before a listing.
//
// Measures a cold request (DNS + TCP + TLS + HTTP), warm keep-alive round
// trips through the same client the sniper uses, the exchange clock offset,
// and optionally WebSocket PING/PONG latency.
//
// Usage:
//
//	go run ./ping_services              # default: 20 requests
//	go run ./ping_services -n 50        # 50 requests per endpoint
//	go run ./ping_services --ws         # also test the market-data WebSocket
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charleschow/listing-sniper/internal/adapters/inbound/mexc_ws"
	"github.com/charleschow/listing-sniper/internal/adapters/mexc_auth"
	"github.com/charleschow/listing-sniper/internal/adapters/outbound/mexc_http"
	"github.com/charleschow/listing-sniper/internal/config"
)

const (
	pingPath    = "/api/v3/ping"
	httpTimeout = 10 * time.Second
	ipifyV4     = "https://api4.ipify.org"
	ipifyV6     = "https://api6.ipify.org"
)

func main() {
	n := flag.Int("n", 20, "Number of requests per endpoint")
	ws := flag.Bool("ws", false, "Also measure WebSocket PING/PONG latency")
	flag.Parse()

	cfg := config.Load()

	ipv4 := fetchURL(ipifyV4)
	if ipv4 == "" {
		ipv4 = "unavailable"
	}
	ipv6 := fetchURL(ipifyV6)
	if ipv6 == "" {
		ipv6 = "unavailable (no IPv6 connectivity)"
	}
	fmt.Printf("\nPinging MEXC - IPv4: %s  |  IPv6: %s\n", ipv4, ipv6)

	pingREST(cfg, *n)
	if *ws {
		pingWS(cfg.MexcWSURL, *n)
	}
	fmt.Println()
}

func pingREST(cfg *config.Config, n int) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 55))
	fmt.Printf("  MEXC REST - %s\n", cfg.MexcBaseURL)
	fmt.Printf("%s\n", strings.Repeat("=", 55))

	fmt.Println("\n  Cold-start request (DNS + TLS + HTTP):")
	if ms, code, err := measureHTTP(cfg.MexcBaseURL + pingPath); err != nil {
		fmt.Printf("    FAILED: %v\n", err)
	} else {
		fmt.Printf("    %.1f ms  (HTTP %d)\n", ms, code)
	}

	clock := mexc_auth.NewOffsetClock()
	client := mexc_http.NewClient(cfg.MexcBaseURL, mexc_http.WithHTTPTimeout(httpTimeout), mexc_http.WithTimeSource(clock))
	defer client.Close()

	ctx := context.Background()
	if serverMs, sample, err := client.GetServerTime(ctx); err != nil {
		fmt.Printf("\n  [!] Server time failed: %v\n", err)
	} else {
		clock.Observe(serverMs, sample.Sent, sample.Received)
		fmt.Printf("\n  Exchange clock offset: %+d ms  (rtt %d ms)\n", clock.Offset(), sample.Millis)
	}

	fmt.Printf("\n  Warm HTTP latency (%d requests, keep-alive):\n", n)
	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		sample, err := client.Ping(ctx)
		if err != nil {
			fmt.Printf("  [%*d/%d]  FAILED: %v\n", pad, i, n, err)
			continue
		}
		ms := float64(sample.Duration().Microseconds()) / 1000
		latencies = append(latencies, ms)
		fmt.Printf("  [%*d/%d]  %7.1f ms\n", pad, i, n, ms)
	}
	printStats(latencies, "MEXC HTTP")
}

func pingWS(wsURL string, n int) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 55))
	fmt.Printf("  MEXC WEBSOCKET - %s\n", wsURL)
	fmt.Printf("%s\n", strings.Repeat("=", 55))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second+time.Duration(n)*5*time.Second)
	defer cancel()

	rtts, err := mexc_ws.NewClient(wsURL).MeasurePing(ctx, n)
	if err != nil {
		fmt.Printf("  [!] WS ping failed: %v\n", err)
	}
	latencies := make([]float64, 0, len(rtts))
	pad := len(fmt.Sprintf("%d", n))
	for i, d := range rtts {
		ms := float64(d.Microseconds()) / 1000
		latencies = append(latencies, ms)
		fmt.Printf("  [%*d/%d]  %7.1f ms  (PING/PONG)\n", pad, i+1, n, ms)
	}
	printStats(latencies, "MEXC WebSocket")
}

func measureHTTP(url string) (ms float64, statusCode int, err error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	c := &http.Client{Timeout: httpTimeout}
	start := time.Now()
	resp, err := c.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	return float64(elapsed.Microseconds()) / 1000, resp.StatusCode, nil
}

func printStats(latencies []float64, label string) {
	if len(latencies) < 2 {
		fmt.Printf("\n  Not enough %s samples for statistics.\n", label)
		return
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	mean := 0.0
	for _, v := range latencies {
		mean += v
	}
	mean /= float64(len(latencies))

	variance := 0.0
	for _, v := range latencies {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(latencies) - 1)

	fmt.Printf("\n  --- %s Stats (%d requests) ---\n", label, len(latencies))
	fmt.Printf("  Min:    %7.1f ms\n", sorted[0])
	fmt.Printf("  Max:    %7.1f ms\n", sorted[len(sorted)-1])
	fmt.Printf("  Mean:   %7.1f ms\n", mean)
	fmt.Printf("  Median: %7.1f ms\n", sorted[len(sorted)/2])
	fmt.Printf("  Stdev:  %7.1f ms\n", math.Sqrt(variance))
	fmt.Printf("  p95:    %7.1f ms\n", sorted[min(int(float64(len(sorted))*0.95), len(sorted)-1)])
	fmt.Printf("  p99:    %7.1f ms\n", sorted[min(int(float64(len(sorted))*0.99), len(sorted)-1)])
}

func fetchURL(u string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var b [64]byte
	n, _ := resp.Body.Read(b[:])
	return strings.TrimSpace(string(b[:n]))
}
