package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a development logger for env "dev" and a production logger otherwise.
func New(env string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if env == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return l, nil
}
