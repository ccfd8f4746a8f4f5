package debuglog

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileSink appends trail entries to the per-method log file named by the
// resolved gateway configuration.
type FileSink struct{}

func NewFileSink() *FileSink {
	return &FileSink{}
}

func (s *FileSink) Flush(destination string, entries []Entry) {
	file, err := os.OpenFile(destination, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Error().Err(err).Str("component", "FileSink").Str("destination", destination).Msg("")
		return
	}
	defer file.Close()

	logger := zerolog.New(file).With().Timestamp().Logger()
	for _, entry := range entries {
		event := logger.Info().Str("kind", string(entry.Kind))
		if entry.Fields != nil {
			params := zerolog.Dict()
			for key, value := range entry.Fields {
				params.Str(key, value)
			}
			event = event.Dict("params", params)
		}
		event.Msg(entry.Message)
	}
}
