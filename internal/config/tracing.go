package config

// TracingConfig holds OTLP trace export configuration.
//
// Tracing is enabled when Endpoint is non-empty; spans are exported over
// OTLP/HTTP to the configured collector (a local agent or gateway).
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, e.g. "localhost:4318".
	// Empty disables trace export.
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the service name on exported spans (default: sumo-chatbot)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Enabled reports whether trace export is configured.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != ""
}
