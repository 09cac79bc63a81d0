package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,broken, =x,tenant=yield")
	if len(headers) != 2 {
		t.Fatalf("unexpected headers %v", headers)
	}
	if headers["authorization"] != "Bearer abc" || headers["tenant"] != "yield" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x=1")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
	cfg := ConfigFromEnv("yieldd", "dev")
	if !cfg.Traces || !cfg.Metrics || !cfg.Insecure {
		t.Fatalf("expected exporters enabled: %+v", cfg)
	}
	if cfg.SampleRatio != 0.25 || cfg.Headers["x"] != "1" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if cfg := ConfigFromEnv("yieldd", "dev"); cfg.Traces || cfg.Metrics {
		t.Fatalf("expected exporters disabled without endpoint")
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "yieldd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
