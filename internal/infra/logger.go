package infra

import "go.uber.org/zap"

// NewLogger builds the process-wide structured logger. Set CARPOOL_ENV to
// "production" for JSON output; anything else gets the development console
// encoder.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
