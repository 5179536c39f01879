package capability

import (
	"fmt"

	"github.com/autocoder/kernel/internal/state"
	"github.com/autocoder/kernel/internal/telemetry"
	"github.com/autocoder/kernel/pkg/models"
)

// Build turns a ComponentDef's CapabilityConfig list into concrete
// Capability instances: the always-present kernel triple plus any
// opt-in extras, ready to hand to NewChain. adapter is nil unless some
// component in the topology opts into StateCapability.
func Build(component string, cfgs []models.CapabilityConfig, adapter state.Adapter, reg *telemetry.Registry) ([3]Capability, []Capability, error) {
	var triple [3]Capability
	var extras []Capability

	for _, cfg := range cfgs {
		switch cfg.Name {
		case "SchemaValidator":
			triple[0] = &SchemaValidator{
				InputSchema:  schemaFromConfig(cfg.Config, "input_schema"),
				OutputSchema: schemaFromConfig(cfg.Config, "output_schema"),
			}
		case "RateLimiter":
			triple[1] = NewRateLimiter(
				floatField(cfg.Config, "rate_per_sec", 1000),
				intField(cfg.Config, "burst", 1000),
				intField(cfg.Config, "timeout_ms", 0),
			)
		case "MetricsCollector":
			triple[2] = NewMetricsCollector(reg, component, intFieldPort(cfg.Config))
		case "StateCapability":
			if adapter == nil {
				return triple, extras, fmt.Errorf("capability: component %q opts into StateCapability but no state adapter is configured", component)
			}
			extras = append(extras, NewStateCapability(adapter, component))
		case "RetryHandler":
			extras = append(extras, NewRetryHandler(
				intField(cfg.Config, "max_attempts", 1),
				intField(cfg.Config, "initial_delay_ms", 100),
				intField(cfg.Config, "max_delay_ms", 5000),
			))
		case "CircuitBreaker":
			extras = append(extras, NewCircuitBreaker(
				component,
				uint32(intField(cfg.Config, "failure_threshold", 5)),
				intField(cfg.Config, "recovery_timeout_ms", 30000),
			))
		default:
			return triple, extras, fmt.Errorf("capability: unknown capability %q", cfg.Name)
		}
	}

	if triple[0] == nil {
		triple[0] = &SchemaValidator{}
	}
	if triple[1] == nil {
		triple[1] = NewRateLimiter(1000, 1000, 0)
	}
	if triple[2] == nil {
		triple[2] = NewMetricsCollector(reg, component, "")
	}

	return triple, extras, nil
}

func schemaFromConfig(cfg map[string]any, key string) models.Schema {
	raw, ok := cfg[key]
	if !ok {
		return models.Schema{}
	}
	schema, ok := raw.(models.Schema)
	if !ok {
		return models.Schema{}
	}
	return schema
}

func floatField(cfg map[string]any, key string, def float64) float64 {
	if v, ok := cfg[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

func intField(cfg map[string]any, key string, def int) int {
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func intFieldPort(cfg map[string]any) string {
	if v, ok := cfg["port"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
