// Package logger wraps zap to offer:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Info, WarnKV, etc.),
//   - Echo, which mirrors application output in verbose mode.
//
// Every supervisor service accepts a context and extracts the logger from it,
// so cycle identifiers and stage names follow the log lines they belong to.
package logger
