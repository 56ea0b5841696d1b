package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type LoggerTestSuite struct {
	suite.Suite
	buf *bytes.Buffer
}

func (s *LoggerTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
}

func (s *LoggerTestSuite) TestJSONFormatWritesModuleField() {
	log := Module(NewWithWriter(s.buf, "debug", "json", false), "collector")
	log.Info().Int("alerts", 2).Msg("broadcast tick")

	var line map[string]any
	s.Require().NoError(json.Unmarshal(s.buf.Bytes(), &line))
	s.Equal("collector", line["module"])
	s.Equal("broadcast tick", line["message"])
	s.Equal("info", line["level"])
	s.EqualValues(2, line["alerts"])
}

func (s *LoggerTestSuite) TestLevelFiltersDebug() {
	log := NewWithWriter(s.buf, "warn", "json", false)
	log.Debug().Msg("hidden")
	log.Info().Msg("hidden too")
	s.Empty(s.buf.String())

	log.Warn().Msg("shown")
	s.Contains(s.buf.String(), "shown")
}

func (s *LoggerTestSuite) TestConsoleFormat() {
	log := NewWithWriter(s.buf, "info", "console", false)
	log.Info().Str("addr", ":3001").Msg("http server listening")
	s.Contains(s.buf.String(), "http server listening")
	s.Contains(s.buf.String(), ":3001")
}

func (s *LoggerTestSuite) TestParseLevel() {
	s.Equal(zerolog.DebugLevel, ParseLevel("DEBUG"))
	s.Equal(zerolog.ErrorLevel, ParseLevel(" error "))
	s.Equal(zerolog.InfoLevel, ParseLevel("chatty"))
	s.Equal(zerolog.InfoLevel, ParseLevel(""))
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}
