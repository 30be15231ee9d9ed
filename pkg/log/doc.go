/*
Package log provides structured logging for the Cohesix client using zerolog.

The package wraps zerolog with a global logger, configurable level and
output format, and child-logger helpers that stamp the component, backend,
device, or model context onto every line. JSON output is intended for
production; the console writer is for interactive use of the coh tool.

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Component loggers:

	consoleLog := log.WithComponent("console")
	consoleLog.Debug().Str("verb", "LS").Msg("stream complete")

	devLog := log.WithDevice("device-1")
	devLog.Info().Int("records", 3).Msg("telemetry push")
*/
package log
