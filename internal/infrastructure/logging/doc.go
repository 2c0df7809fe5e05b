// Package logging provides structured logging for que-core.
//
// It wraps log/slog with JSON (default) or text output, level filtering
// and default service/version attributes:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Never log account passwords, pairing tokens, access tokens or API keys.
package logging
