/*
Package log provides structured logging for kiln using zerolog.

The package wraps zerolog behind a small API: a global Logger initialized via
Init, component-scoped child loggers, and context helpers for the identifiers
that recur throughout the runtime (batch index, worker id).

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	logger := log.WithComponent("executor")
	logger.Debug().Int("worker_id", 3).Msg("worker parked")

Structured fields:

	log.Logger.Info().
		Uint64("batch_index", batch.Index()).
		Int("tx_count", len(txs)).
		Msg("batch scheduled")

The runtime's hot paths (state propagation through resource chains, work
stealing) log at trace level only; production deployments should run at info.
*/
package log
