package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	errs "crowdsale/core/errors"
)

type namedEvent string

func (e namedEvent) EventType() string { return string(e) }

func TestSaleMetricsOutcomeKinds(t *testing.T) {
	m := Sale()
	before := testutil.ToFloat64(m.operations.WithLabelValues("buy_token", "validation"))
	m.ObserveOperation("buy_token", errs.New(errs.ErrValidation, "bad"), time.Millisecond)
	m.ObserveOperation("buy_token", nil, time.Millisecond)
	m.ObserveOperation("buy_token", errors.New("disk"), time.Millisecond)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("buy_token", "validation")); got != before+1 {
		t.Fatalf("unexpected validation count %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("buy_token", "internal")); got < 1 {
		t.Fatalf("unexpected internal count %v", got)
	}
}

func TestSaleMetricsAmounts(t *testing.T) {
	m := Sale()
	asset := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	m.ObserveAmount("withdraw_token", asset, big.NewInt(250))
	m.ObserveAmount("withdraw_token", asset, big.NewInt(50))
	if got := testutil.ToFloat64(m.amounts.WithLabelValues("withdraw_token", asset.Hex())); got != 300 {
		t.Fatalf("unexpected amount %v", got)
	}
}

func TestEventMetricsEmit(t *testing.T) {
	m := Events()
	m.Emit(namedEvent("sale.token_bought"))
	m.Emit(namedEvent(""))
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("sale.token_bought")); got < 1 {
		t.Fatalf("unexpected count %v", got)
	}
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("unknown")); got < 1 {
		t.Fatalf("unexpected unknown count %v", got)
	}
}

func TestHTTPStreamGauge(t *testing.T) {
	m := HTTP()
	closeStream := m.StreamOpened()
	if got := testutil.ToFloat64(m.streams); got != 1 {
		t.Fatalf("unexpected open streams %v", got)
	}
	closeStream()
	closeStream()
	if got := testutil.ToFloat64(m.streams); got != 0 {
		t.Fatalf("unexpected open streams after close %v", got)
	}
}

func TestSaleMetricsLatencyHistogram(t *testing.T) {
	m := Sale()
	read := func() *dto.Histogram {
		var out dto.Metric
		if err := m.latency.WithLabelValues("withdraw_token").(prometheus.Metric).Write(&out); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		return out.GetHistogram()
	}
	before := read()
	m.ObserveOperation("withdraw_token", nil, 250*time.Millisecond)
	after := read()
	if after.GetSampleCount() != before.GetSampleCount()+1 {
		t.Fatalf("unexpected sample count %d", after.GetSampleCount())
	}
	if delta := after.GetSampleSum() - before.GetSampleSum(); delta < 0.249 || delta > 0.251 {
		t.Fatalf("unexpected sample sum delta %v", delta)
	}
}
