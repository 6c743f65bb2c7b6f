package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"crowdsale/core/events"
	"crowdsale/core/types"
)

type rawEvent struct{ evt *types.Event }

func (r rawEvent) EventType() string   { return r.evt.Type }
func (r rawEvent) Event() *types.Event { return r.evt }

func TestDispatcherSignsPayload(t *testing.T) {
	var mu sync.Mutex
	var signature string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		mu.Lock()
		signature = r.Header.Get(HeaderSignature)
		body = data
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	evt := &types.Event{Sequence: 9, Type: "sale.token_bought", Attributes: map[string]string{"amount": "5"}}
	if err := dispatcher.Enqueue(evt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { mu.Lock(); defer mu.Unlock(); return signature != "" }, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if signature != Sign([]byte("secret"), body) {
		t.Fatalf("signature mismatch: %s", signature)
	}
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Sequence != 9 || payload.Attributes["amount"] != "5" || payload.DeliveryID == "" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestDispatcherRetries(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"), WithRetryPolicy(5, 10*time.Millisecond, 20*time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Enqueue(&types.Event{Type: "sale.token_withdrew"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&attempts) >= 3 }, time.Second)
	if atomic.LoadInt32(&attempts) < 3 {
		t.Fatalf("expected retries, got %d", atomic.LoadInt32(&attempts))
	}
}

func TestForwardFiltersEventTypes(t *testing.T) {
	var mu sync.Mutex
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		received = append(received, r.Header.Get(HeaderEvent))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()

	log := events.NewLog()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Forward(ctx, log, "sale.token_bought")
		close(done)
	}()
	// Forward subscribes asynchronously; keep emitting until a delivery lands.
	waitFor(func() bool {
		log.Emit(rawEvent{&types.Event{Type: "token.transfer", Attributes: map[string]string{}}})
		log.Emit(rawEvent{&types.Event{Type: "sale.token_bought", Attributes: map[string]string{}}})
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, time.Second)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 {
		t.Fatalf("expected a delivery")
	}
	for _, typ := range received {
		if typ != "sale.token_bought" {
			t.Fatalf("unexpected forwarded type %s", typ)
		}
	}
}

func TestDispatcherZeroTimeoutClientDelivers(t *testing.T) {
	hits := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithHTTPClient(&http.Client{}),
		WithRetryPolicy(1, time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	defer dispatcher.Close()
	if err := dispatcher.Enqueue(&types.Event{Type: "sale.token_bought"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return atomic.LoadInt32(&hits) > 0 }, time.Second)
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected one delivery, got %d", atomic.LoadInt32(&hits))
	}
}

func TestDispatcherRecordsOutcomes(t *testing.T) {
	attempts := int32(0)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	dispatcher, err := NewDispatcher(server.URL, []byte("secret"),
		WithMeterProvider(provider),
		WithRetryPolicy(3, time.Millisecond, 2*time.Millisecond))
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	if err := dispatcher.Enqueue(&types.Event{Type: "sale.token_bought"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitFor(func() bool { return outcomeCount(t, reader, outcomeDelivered) == 1 }, time.Second)
	dispatcher.Close()

	if got := outcomeCount(t, reader, outcomeDelivered); got != 1 {
		t.Fatalf("delivered = %d", got)
	}
	if got := outcomeCount(t, reader, outcomeRetried); got != 1 {
		t.Fatalf("retried = %d", got)
	}
	if err := dispatcher.Enqueue(&types.Event{Type: "sale.token_bought"}); err == nil {
		t.Fatalf("expected closed dispatcher error")
	}
	if got := outcomeCount(t, reader, outcomeDropped); got != 1 {
		t.Fatalf("dropped = %d", got)
	}
}

func outcomeCount(t *testing.T, reader *sdkmetric.ManualReader, outcome string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != deliveriesCounter {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("outcome")); ok && v.AsString() == outcome {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestNewDispatcherValidates(t *testing.T) {
	if _, err := NewDispatcher(" ", []byte("s")); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewDispatcher("http://localhost", nil); err == nil {
		t.Fatalf("expected secret error")
	}
}

func waitFor(cond func() bool, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}
