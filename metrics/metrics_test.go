package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestRecordRequest(t *testing.T) {
	tests := []struct {
		name       string
		tool       string
		duration   float64
		success    bool
		wantStatus string
	}{
		{
			name:       "successful request",
			tool:       "fetch_mofs",
			duration:   0.5,
			success:    true,
			wantStatus: "success",
		},
		{
			name:       "failed request",
			tool:       "fetch_mofs",
			duration:   1.0,
			success:    false,
			wantStatus: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter, err := RequestsTotal.GetMetricWithLabelValues(tt.tool, tt.wantStatus)
			if err != nil {
				t.Fatalf("failed to get metric: %v", err)
			}
			before := counterValue(t, counter)

			RecordRequest(tt.tool, tt.duration, tt.success)

			if got := counterValue(t, counter); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestRecordAPICall(t *testing.T) {
	tests := []struct {
		name      string
		database  string
		action    string
		success   bool
		errorCode string
	}{
		{
			name:     "successful API call",
			database: "bohrium",
			action:   "crystal_list",
			success:  true,
		},
		{
			name:      "failed API call with error code",
			database:  "openlam",
			action:    "structures_iterate",
			success:   false,
			errorCode: "4001",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			RecordAPICall(tt.database, tt.action, 0.2, tt.success, tt.errorCode)

			status := "success"
			if !tt.success {
				status = "error"
			}
			counter, err := DatabaseAPIRequestsTotal.GetMetricWithLabelValues(tt.database, tt.action, status)
			if err != nil {
				t.Fatalf("failed to get metric: %v", err)
			}
			if counterValue(t, counter) < 1 {
				t.Error("expected request counter to be incremented")
			}

			if tt.errorCode != "" {
				errCounter, err := DatabaseAPIErrors.GetMetricWithLabelValues(tt.database, tt.action, tt.errorCode)
				if err != nil {
					t.Fatalf("failed to get metric: %v", err)
				}
				if counterValue(t, errCounter) < 1 {
					t.Error("expected error counter to be incremented")
				}
			}
		})
	}
}

func TestRecordSaved(t *testing.T) {
	c := StructuresSaved.WithLabelValues("mofdb", "cif")
	before := counterValue(t, c)

	RecordSaved("mofdb", "cif")
	RecordSaved("mofdb", "cif")

	if got := counterValue(t, c); got != before+2 {
		t.Errorf("structures_saved_total = %v, want %v", got, before+2)
	}
}

func TestRecordProviderResult(t *testing.T) {
	ok := OptimadeProviderResults.WithLabelValues("optimade_alexandria_icams_rub_de_pbe", "success")
	bad := OptimadeProviderResults.WithLabelValues("optimade_alexandria_icams_rub_de_pbe", "error")
	okBefore, badBefore := counterValue(t, ok), counterValue(t, bad)

	RecordProviderResult("optimade_alexandria_icams_rub_de_pbe", true)
	RecordProviderResult("optimade_alexandria_icams_rub_de_pbe", false)

	if got := counterValue(t, ok); got != okBefore+1 {
		t.Errorf("success = %v, want %v", got, okBefore+1)
	}
	if got := counterValue(t, bad); got != badBefore+1 {
		t.Errorf("error = %v, want %v", got, badBefore+1)
	}
}

func TestSetCircuitState(t *testing.T) {
	SetCircuitState("optimade", 1)

	var m dto.Metric
	if err := CircuitState.WithLabelValues("optimade").Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if got := m.Gauge.GetValue(); got != 1 {
		t.Errorf("circuit_breaker_state = %v, want 1", got)
	}
}

func TestMetricsRegistered(t *testing.T) {
	collectors := []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		RequestInFlight,
		PanicsRecovered,
		DatabaseAPILatency,
		DatabaseAPIRequestsTotal,
		DatabaseAPIErrors,
		DatabaseAPIRetries,
		CircuitState,
		RateLimitRejections,
		RateLimitWaits,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StructuresSaved,
		CIFDownloadBytes,
		OptimadeProviderResults,
		PhotonsEstimated,
	}

	for i, c := range collectors {
		if c == nil {
			t.Errorf("collector %d is nil", i)
		}
	}

	// promauto registers with the default registry, so a second registration
	// of the same collector must be rejected
	err := prometheus.Register(RequestsTotal)
	if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
		t.Errorf("expected AlreadyRegisteredError, got %v", err)
	}
}
