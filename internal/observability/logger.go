package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{logger: logger}
}

// WithRelay adds relay_url context to logger.
func (l *Logger) WithRelay(relayURL string) *Logger {
	return &Logger{logger: l.logger.With().Str("relay_url", relayURL).Logger()}
}

// WithEvent adds event_id context to logger.
func (l *Logger) WithEvent(eventID string) *Logger {
	return &Logger{logger: l.logger.With().Str("event_id", eventID).Logger()}
}

// WithCrash adds crash report context to logger.
func (l *Logger) WithCrash(crashID, platform, appID string) *Logger {
	return &Logger{
		logger: l.logger.With().
			Str("crash_id", crashID).
			Str("platform", platform).
			Str("app_id", appID).
			Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// RelayConnected logs a successful relay WebSocket handshake.
func (l *Logger) RelayConnected(relayURL string) {
	l.logger.Info().Str("relay_url", relayURL).Msg("relay connected")
}

// RelayDisconnected logs a relay connection drop, with the backoff that
// follows it.
func (l *Logger) RelayDisconnected(relayURL string, err error, retryIn time.Duration) {
	l.logger.Warn().
		Str("relay_url", relayURL).
		Err(err).
		Dur("retry_in", retryIn).
		Msg("relay disconnected")
}

// EventReceived logs a gift-wrap event accepted off a subscription.
func (l *Logger) EventReceived(relayURL, eventID string, kind int) {
	l.logger.Debug().
		Str("relay_url", relayURL).
		Str("event_id", eventID).
		Int("kind", kind).
		Msg("event received")
}

// EventDuplicate logs a subscription-level dedup hit.
func (l *Logger) EventDuplicate(eventID string) {
	l.logger.Debug().Str("event_id", eventID).Msg("duplicate event discarded")
}

// UnwrapFailed logs a failure anywhere in the gift wrap -> seal -> rumor pipeline.
func (l *Logger) UnwrapFailed(eventID string, stage string, err error) {
	l.logger.Warn().
		Str("event_id", eventID).
		Str("stage", stage).
		Err(err).
		Msg("unwrap failed")
}

// ChunkFetchStarted logs the start of a manifest's chunk fetch fan-out.
func (l *Logger) ChunkFetchStarted(manifestID string, chunkCount int) {
	l.logger.Info().
		Str("manifest_id", manifestID).
		Int("chunk_count", chunkCount).
		Msg("chunk fetch started")
}

// ChunkFetchCompleted logs the outcome of a manifest's chunk fetch fan-out.
func (l *Logger) ChunkFetchCompleted(manifestID string, fetched, total int, duration time.Duration) {
	l.logger.Info().
		Str("manifest_id", manifestID).
		Int("fetched", fetched).
		Int("total", total).
		Dur("duration", duration).
		Msg("chunk fetch completed")
}

// CrashStored logs a crash report persisted to the store.
func (l *Logger) CrashStored(crashID, platform, appID string) {
	l.logger.Info().
		Str("crash_id", crashID).
		Str("platform", platform).
		Str("app_id", appID).
		Msg("crash report stored")
}

// SymbolicationCompleted logs the outcome of a stack trace symbolication pass.
func (l *Logger) SymbolicationCompleted(crashID, platform string, framesResolved, framesTotal int) {
	l.logger.Info().
		Str("crash_id", crashID).
		Str("platform", platform).
		Int("frames_resolved", framesResolved).
		Int("frames_total", framesTotal).
		Msg("symbolication completed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
