/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/friendsincode/huginn_fleet/internal/logbuffer"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return setup(environment, zerolog.ConsoleWriter{Out: os.Stdout})
}

// SetupWithBuffer configures zerolog to tee into the in-memory log buffer
// in addition to the console.
func SetupWithBuffer(environment string, buffer *logbuffer.Buffer) zerolog.Logger {
	return setup(environment, logbuffer.NewWriter(buffer, zerolog.ConsoleWriter{Out: os.Stdout}))
}

func setup(environment string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
