package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestConfigureLevels(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Configure(&buf, false)
	log.Debug().Msg("hidden")
	log.Info().Str("country", "Sweden").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"country":"Sweden"`)

	buf.Reset()
	Configure(&buf, true)
	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
