package stack

import (
	"testing"
)

func TestRuntimeEnvVars_Base(t *testing.T) {
	cfg := validTestConfig()
	env := runtimeEnvVars(cfg, "placefinder_memory-mem", "placefinder-mcp/api-key")

	if env["AWS_REGION"] != "us-east-2" {
		t.Errorf("AWS_REGION = %q", env["AWS_REGION"])
	}
	if env["AGENTCORE_MEMORY_ID"] != "placefinder_memory-mem" {
		t.Errorf("AGENTCORE_MEMORY_ID = %q", env["AGENTCORE_MEMORY_ID"])
	}
	if env["API_KEY_SECRET_NAME"] != "placefinder-mcp/api-key" {
		t.Errorf("API_KEY_SECRET_NAME = %q", env["API_KEY_SECRET_NAME"])
	}
	// No OTEL block without tracing.
	if _, ok := env["OTEL_PYTHON_DISTRO"]; ok {
		t.Error("OTEL vars should not be set when tracing is disabled")
	}
}

func TestRuntimeEnvVars_Tracing(t *testing.T) {
	cfg := validTestConfig()
	cfg.Observability = &ObservabilityConfig{TracingEnabled: true}
	env := runtimeEnvVars(cfg, "mem-1", "sec-1")

	if env["OTEL_EXPORTER_OTLP_PROTOCOL"] != "http/protobuf" {
		t.Errorf("OTEL_EXPORTER_OTLP_PROTOCOL = %q", env["OTEL_EXPORTER_OTLP_PROTOCOL"])
	}
	if env["OTEL_PYTHON_DISTRO"] != "aws_distro" {
		t.Errorf("OTEL_PYTHON_DISTRO = %q", env["OTEL_PYTHON_DISTRO"])
	}
	if env["OTEL_PYTHON_CONFIGURATOR"] != "aws_configurator" {
		t.Errorf("OTEL_PYTHON_CONFIGURATOR = %q", env["OTEL_PYTHON_CONFIGURATOR"])
	}
	if env["OTEL_RESOURCE_ATTRIBUTES"] != "service.name=placefinder-mcp" {
		t.Errorf("OTEL_RESOURCE_ATTRIBUTES = %q", env["OTEL_RESOURCE_ATTRIBUTES"])
	}
	// Default log group when none is configured.
	wantHeaders := "x-aws-log-group=/agentstack/placefinder-mcp" +
		",x-aws-log-stream=runtime,x-aws-metric-namespace=placefinder-mcp"
	if env["OTEL_EXPORTER_OTLP_LOGS_HEADERS"] != wantHeaders {
		t.Errorf("OTEL_EXPORTER_OTLP_LOGS_HEADERS = %q, want %q",
			env["OTEL_EXPORTER_OTLP_LOGS_HEADERS"], wantHeaders)
	}
}

func TestRuntimeEnvVars_ExplicitLogGroup(t *testing.T) {
	cfg := validTestConfig()
	cfg.Observability = &ObservabilityConfig{TracingEnabled: true, LogGroup: "/custom/group"}
	env := runtimeEnvVars(cfg, "mem-1", "sec-1")
	want := "x-aws-log-group=/custom/group,x-aws-log-stream=runtime,x-aws-metric-namespace=placefinder-mcp"
	if env["OTEL_EXPORTER_OTLP_LOGS_HEADERS"] != want {
		t.Errorf("OTEL_EXPORTER_OTLP_LOGS_HEADERS = %q", env["OTEL_EXPORTER_OTLP_LOGS_HEADERS"])
	}
}
