// Command voicecheck exercises a running gateway end to end: it dials the
// voice WebSocket endpoint, streams synthetic WAV utterances, and prints a
// latency summary. Reconnection follows the same backoff policy the
// dashboard client uses, so it doubles as a soak test for dropped links.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caretide/intake-gateway/internal/audio"
	"github.com/caretide/intake-gateway/internal/voice"
	"github.com/caretide/intake-gateway/internal/ws"
)

func main() {
	gateway := flag.String("gateway", "ws://localhost:8000/ws/voice", "gateway WebSocket URL")
	concurrency := flag.Int("concurrency", 1, "number of concurrent sessions")
	turns := flag.Int("turns", 3, "voice turns per session")
	synthesize := flag.Bool("synthesize", false, "request speech synthesis for replies")
	timeout := flag.Duration("timeout", 30*time.Second, "per-turn reply timeout")
	flag.Parse()

	fmt.Printf("Voice check: %d session(s), %d turn(s) each\n", *concurrency, *turns)
	fmt.Printf("Gateway: %s | Synthesize: %v\n\n", *gateway, *synthesize)

	var mu sync.Mutex
	var results []turnResult
	var wg sync.WaitGroup

	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := runSession(*gateway, *turns, *synthesize, *timeout)
			mu.Lock()
			results = append(results, rs...)
			mu.Unlock()
			if err != nil {
				fmt.Fprintf(os.Stderr, "session: %v\n", err)
			}
		}()
	}

	wg.Wait()
	printSummary(results)
}

type turnResult struct {
	ok      bool
	totalMs float64
	err     string
}

func runSession(gateway string, turns int, synthesize bool, timeout time.Duration) ([]turnResult, error) {
	var results []turnResult

	err := ws.RunWithReconnect(context.Background(), ws.DialConfig{URL: gateway}, func(conn *websocket.Conn) error {
		meta, _ := json.Marshal(map[string]any{
			"synthesize": synthesize,
			"context": map[string]string{
				"patient_name":   "Check Caller",
				"referral_stage": "intake",
			},
		})
		if err := conn.WriteMessage(websocket.TextMessage, meta); err != nil {
			return fmt.Errorf("send metadata: %w", err)
		}

		// First text frame back is the session-started status.
		if _, err := readMessage(conn, timeout); err != nil {
			return fmt.Errorf("session start: %w", err)
		}

		clip := audio.SamplesToWAV(audio.Tone(440, 2.0, 16000), 16000)

		for range turns {
			results = append(results, runTurn(conn, clip, timeout))
		}

		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	})

	return results, err
}

// runTurn sends one utterance and waits for the turn to settle: a response
// message on success, or an error/cancelled message otherwise.
func runTurn(conn *websocket.Conn, clip []byte, timeout time.Duration) turnResult {
	start := time.Now()
	if err := conn.WriteMessage(websocket.BinaryMessage, clip); err != nil {
		return turnResult{err: fmt.Sprintf("send audio: %v", err)}
	}

	for {
		msg, err := readMessage(conn, timeout)
		if err != nil {
			return turnResult{err: fmt.Sprintf("read: %v", err)}
		}
		switch msg.Type {
		case voice.MessageResponse:
			return turnResult{ok: true, totalMs: float64(time.Since(start).Milliseconds())}
		case voice.MessageError:
			return turnResult{err: msg.Content}
		case voice.MessageStatus:
			if msg.Content == voice.StatusCancelled {
				return turnResult{err: "cancelled"}
			}
		}
	}
}

// readMessage reads frames until it gets a text frame that decodes as a
// gateway message. Binary frames (synthesized audio) are skipped.
func readMessage(conn *websocket.Conn, timeout time.Duration) (voice.Message, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return voice.Message{}, err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var m voice.Message
		if err = json.Unmarshal(data, &m); err != nil {
			continue
		}
		return m, nil
	}
}

func printSummary(results []turnResult) {
	var succeeded, failed int
	var latencies []float64

	for _, r := range results {
		if !r.ok {
			failed++
			continue
		}
		succeeded++
		latencies = append(latencies, r.totalMs)
	}

	fmt.Printf("\n=== Voice Check Results ===\n")
	fmt.Printf("Turns completed: %d\n", succeeded)
	fmt.Printf("Turns failed:    %d\n", failed)

	if len(latencies) == 0 {
		fmt.Println("No successful turns to report latency")
		return
	}

	fmt.Printf("\n%-8s %8s %8s %8s\n", "Stage", "p50", "p95", "p99")
	fmt.Printf("%-8s %7.0fms %7.0fms %7.0fms\n", "Turn",
		percentile(latencies, 50), percentile(latencies, 95), percentile(latencies, 99))
}

func percentile(data []float64, pct float64) float64 {
	sort.Float64s(data)
	idx := int(math.Ceil(pct/100*float64(len(data)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(data) {
		idx = len(data) - 1
	}
	return data[idx]
}
