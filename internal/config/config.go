// Package config defines function-master's process configuration:
// defaults, pflag-bound command-line flags and YAML file loading (the
// serve command overlays the file after flags are parsed, so file values
// win over flag values), grounded on milo's internal/control-plane.Options AddFlags(fs) pattern.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

// FunctionMetaScope controls which function-meta-delete events cascade a
// SHUT_DOWN_SIGNAL to running instances.
type FunctionMetaScope string

const (
	// FunctionMetaScopeLatestOnly cascades only for the $latest alias,
	// the conservative default (see DESIGN.md Open Question 1).
	FunctionMetaScopeLatestOnly FunctionMetaScope = "latest-only"
	// FunctionMetaScopeAll cascades for every version, including pinned
	// ones.
	FunctionMetaScopeAll FunctionMetaScope = "all"
)

// Config is function-master's full runtime configuration.
type Config struct {
	// RetryKillIntervalMs is killretry.DefaultRetryInterval's override.
	RetryKillIntervalMs int64 `json:"retryKillIntervalMs"`
	// KillTimeoutMs is killretry.DefaultKillTimeout's override.
	KillTimeoutMs int64 `json:"killTimeoutMs"`
	// WatchSyncPeriodMs is reconciler.DefaultSweepPeriod's override.
	WatchSyncPeriodMs int64 `json:"watchSyncPeriodMs"`
	// RuntimeRecoverEnable gates in-place instance reschedule on node
	// fault vs. marking instances FATAL outright.
	RuntimeRecoverEnable bool `json:"runtimeRecoverEnable"`
	// FunctionMetaScope is latest-only or all.
	FunctionMetaScope FunctionMetaScope `json:"functionMetaScope"`
	// GRPCListenAddress is the RPC listen address. Serve logs it at
	// startup; no RPC server is started on it.
	GRPCListenAddress string `json:"grpcListenAddress"`
	// HTTPListenAddress is where httpapi serves the debug/query routes.
	HTTPListenAddress string `json:"httpListenAddress"`
	// MetricsListenAddress serves the Prometheus /metrics endpoint.
	MetricsListenAddress string `json:"metricsListenAddress"`
	// MetadataStoreEndpoints is the etcd-compatible metadata store
	// client's endpoint list.
	MetadataStoreEndpoints []string `json:"metadataStoreEndpoints"`
	// SchedulerAddress is the global scheduler's RPC address.
	SchedulerAddress string `json:"schedulerAddress"`
	// Debug enables debug-level logging.
	Debug bool `json:"debug"`
}

// Default returns the configuration with every documented default
// applied, per spec.md §9's listed constants.
func Default() *Config {
	return &Config{
		RetryKillIntervalMs:    15000,
		KillTimeoutMs:          30000,
		WatchSyncPeriodMs:      30000,
		RuntimeRecoverEnable:   false,
		FunctionMetaScope:      FunctionMetaScopeLatestOnly,
		GRPCListenAddress:      ":7070",
		HTTPListenAddress:      ":7080",
		MetricsListenAddress:   ":7090",
		MetadataStoreEndpoints: []string{"127.0.0.1:2379"},
		SchedulerAddress:       "127.0.0.1:7000",
		Debug:                  false,
	}
}

// AddFlags binds every Config field to fs, following milo's
// Options.AddFlags(fs *pflag.FlagSet) convention.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.Int64Var(&c.RetryKillIntervalMs, "retry-kill-interval-ms", c.RetryKillIntervalMs, "Interval between kill-signal retry attempts, in milliseconds.")
	fs.Int64Var(&c.KillTimeoutMs, "kill-timeout-ms", c.KillTimeoutMs, "Per-attempt RPC deadline for forwarded kill/signal calls, in milliseconds.")
	fs.Int64Var(&c.WatchSyncPeriodMs, "watch-sync-period-ms", c.WatchSyncPeriodMs, "Period between watch-sync reconciliation sweeps, in milliseconds.")
	fs.BoolVar(&c.RuntimeRecoverEnable, "runtime-recover-enable", c.RuntimeRecoverEnable, "Reschedule instances in place on node fault instead of marking them FATAL.")
	fs.StringVar((*string)(&c.FunctionMetaScope), "function-meta-scope", string(c.FunctionMetaScope), "Which function-meta deletes cascade a shutdown: 'latest-only' or 'all'.")
	fs.StringVar(&c.GRPCListenAddress, "grpc-listen-address", c.GRPCListenAddress, "RPC listen address (logged at startup; no RPC server is started on it).")
	fs.StringVar(&c.HTTPListenAddress, "http-listen-address", c.HTTPListenAddress, "Address the HTTP debug/query API listens on.")
	fs.StringVar(&c.MetricsListenAddress, "metrics-listen-address", c.MetricsListenAddress, "Address the Prometheus metrics endpoint listens on.")
	fs.StringSliceVar(&c.MetadataStoreEndpoints, "metastore-endpoints", c.MetadataStoreEndpoints, "Metadata store client endpoints.")
	fs.StringVar(&c.SchedulerAddress, "scheduler-address", c.SchedulerAddress, "Global scheduler RPC address.")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug-level logging.")
}

// RetryKillInterval returns RetryKillIntervalMs as a time.Duration.
func (c *Config) RetryKillInterval() time.Duration {
	return time.Duration(c.RetryKillIntervalMs) * time.Millisecond
}

// KillTimeout returns KillTimeoutMs as a time.Duration.
func (c *Config) KillTimeout() time.Duration {
	return time.Duration(c.KillTimeoutMs) * time.Millisecond
}

// WatchSyncPeriod returns WatchSyncPeriodMs as a time.Duration.
func (c *Config) WatchSyncPeriod() time.Duration {
	return time.Duration(c.WatchSyncPeriodMs) * time.Millisecond
}

// LoadFile overlays a YAML config file's contents onto c. Fields absent
// from the file are left at their current value.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations that would otherwise fail confusingly
// deep inside a component constructor.
func (c *Config) Validate() error {
	if c.FunctionMetaScope != FunctionMetaScopeLatestOnly && c.FunctionMetaScope != FunctionMetaScopeAll {
		return fmt.Errorf("functionMetaScope must be %q or %q, got %q", FunctionMetaScopeLatestOnly, FunctionMetaScopeAll, c.FunctionMetaScope)
	}
	if len(c.MetadataStoreEndpoints) == 0 {
		return fmt.Errorf("metadataStoreEndpoints must not be empty")
	}
	if c.RetryKillIntervalMs <= 0 {
		return fmt.Errorf("retryKillIntervalMs must be positive")
	}
	if c.KillTimeoutMs <= 0 {
		return fmt.Errorf("killTimeoutMs must be positive")
	}
	return nil
}
