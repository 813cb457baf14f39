package utils

import (
	"os"

	"github.com/kairos-io/kairos-sdk/types"
	"github.com/pinebook-tools/pbpinstall/internal/constants"
	"github.com/rs/zerolog"
)

// KLog is the generic KairosLogger that we pass to yip calls
var KLog types.KairosLogger

// Log is the logger used everywhere else. Discards until SetLogger is called.
var Log = zerolog.Nop()

func SetLogger(debug bool) {
	level := "info"

	if debug || os.Getenv("PBPINSTALL_DEBUG") != "" {
		level = "debug"
	}
	_ = os.MkdirAll(constants.LogDir, os.ModeDir|os.ModePerm)

	KLog = types.NewKairosLoggerWithExtraDirs("pbpinstall", level, false, constants.LogDir)
	Log = KLog.Logger
}
