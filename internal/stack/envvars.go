package stack

// otelEnvVars returns the OpenTelemetry environment block injected into the
// runtime container when tracing is enabled. Values match what the AWS distro
// auto-instrumentation expects.
func otelEnvVars(app, logGroup string) map[string]string {
	return map[string]string{
		"OTEL_EXPORTER_OTLP_PROTOCOL":    "http/protobuf",
		"OTEL_PROPAGATORS":               "tracecontext,baggage,xray",
		"OTEL_RESOURCE_ATTRIBUTES":       "service.name=" + repositoryName(app),
		"OTEL_EXPORTER_OTLP_LOGS_HEADERS": "x-aws-log-group=" + logGroup +
			",x-aws-log-stream=runtime,x-aws-metric-namespace=" + repositoryName(app),
		"OTEL_PYTHON_DISTRO":       "aws_distro",
		"OTEL_PYTHON_CONFIGURATOR": "aws_configurator",
	}
}

// runtimeEnvVars builds the environment injected into the runtime container:
// the region, the memory resource handle, and the name (never the value) of
// the placeholder secret. The OTEL block is merged in when tracing is enabled.
func runtimeEnvVars(cfg *Config, memoryID, secretName string) map[string]string {
	env := map[string]string{
		"AWS_REGION":          cfg.Region,
		"AGENTCORE_MEMORY_ID": memoryID,
		"API_KEY_SECRET_NAME": secretName,
	}
	if cfg.Observability != nil && cfg.Observability.TracingEnabled {
		logGroup := cfg.Observability.LogGroup
		if logGroup == "" {
			logGroup = defaultLogGroup(cfg.App)
		}
		for k, v := range otelEnvVars(cfg.App, logGroup) {
			env[k] = v
		}
	}
	return env
}

// defaultLogGroup returns the CloudWatch log group used when observability is
// enabled without an explicit log group name.
func defaultLogGroup(app string) string {
	return "/agentstack/" + repositoryName(app)
}
