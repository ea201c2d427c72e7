package priceseries

import (
	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/pkg/logger"
)

func testLogger() zerolog.Logger {
	return logger.New(logger.Config{Level: "error", Pretty: false})
}
