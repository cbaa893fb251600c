// Package gologger bridges the pipeline's glog logging surface to go-job so
// queue workers processing detached webhook batches log through the same
// provider as the inline pipeline.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve picks the pipeline logger with deterministic precedence:
// provider beats a directly injected logger, and with neither the nop
// logger keeps every stage loggable.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider wraps the resolved provider for go-job's logging contract.
// Nil stays nil so go-job applies its own default.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger wraps a single resolved logger for go-job's logging contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the pipeline logger once and hands back both the
// glog pair and the go-job bridges, so a worker deployment configures inline
// and queue-side logging from one call.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
