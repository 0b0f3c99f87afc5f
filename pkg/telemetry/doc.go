// Package telemetry provides observability instrumentation for the
// SetForge installer.
//
// It combines four subsystems behind one handle:
//
//  1. Structured logging with zerolog, with field helpers for the
//     install run id, phase, step and handled-error id.
//  2. Prometheus metrics covering handled errors, suggested recovery
//     actions, snapshots, rollbacks and step outcomes. Metrics
//     implements recovery.Recorder and can be registered directly on
//     the error handler.
//  3. OpenTelemetry tracing with spans per install run, phase and
//     step, exported to stdout or an OTLP collector.
//  4. An install event stream that fans progress events out to
//     subscribers (the CLI renderer, tests) without ever blocking the
//     run.
//
// Initialize once at startup:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
package telemetry
