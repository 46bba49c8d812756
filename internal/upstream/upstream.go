// Package upstream tracks the external collaborators the gateway depends
// on (transcription, completion, synthesis services) and probes their
// health endpoints for the dashboard's service status panel.
package upstream

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Service is one named collaborator.
type Service struct {
	Name      string // e.g. "whisper-server"
	Category  string // "asr", "llm" or "tts"
	HealthURL string
}

// Status is the result of one health probe.
type Status struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Healthy  bool    `json:"healthy"`
	Error    string  `json:"error,omitempty"`
	ProbeMs  float64 `json:"probe_ms"`
}

// Monitor probes a fixed registry of upstream services.
type Monitor struct {
	services []Service
	client   *http.Client
}

// NewMonitor creates a monitor over the given services.
func NewMonitor(services []Service) *Monitor {
	return &Monitor{
		services: services,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Services returns the registered service names.
func (m *Monitor) Services() []Service {
	return m.services
}

// Check probes every registered service concurrently and returns their
// statuses in registration order.
func (m *Monitor) Check(ctx context.Context) []Status {
	out := make([]Status, len(m.services))
	var wg sync.WaitGroup
	for i, svc := range m.services {
		wg.Add(1)
		go func(i int, svc Service) {
			defer wg.Done()
			out[i] = m.probe(ctx, svc)
		}(i, svc)
	}
	wg.Wait()
	return out
}

func (m *Monitor) probe(ctx context.Context, svc Service) Status {
	st := Status{Name: svc.Name, Category: svc.Category}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "GET", svc.HealthURL, nil)
	if err != nil {
		st.Error = err.Error()
		return st
	}

	resp, err := m.client.Do(req)
	st.ProbeMs = float64(time.Since(start).Milliseconds())
	if err != nil {
		st.Error = err.Error()
		return st
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		st.Error = resp.Status
		return st
	}
	st.Healthy = true
	return st
}
