package gatewaytel

import (
	"context"
	"testing"
)

func TestInitTracer_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "gateway", "v1", "", 1)
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampleRatioOrDefault_ClampsOutOfRangeValues(t *testing.T) {
	cases := map[float64]float64{
		0:    1,
		-1:   1,
		1.5:  1,
		0.25: 0.25,
		1:    1,
	}
	for in, want := range cases {
		if got := sampleRatioOrDefault(in); got != want {
			t.Fatalf("sampleRatioOrDefault(%v) = %v, want %v", in, got, want)
		}
	}
}
