package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorderMetrics(t *testing.T) {
	r := NewRecorder()
	m := RecorderMetrics(r)

	m.ProcessorInvocations.With(ProcessorLabel, "default").Add(1)
	m.ProcessorInvocations.With(ProcessorLabel, "default").Add(2)
	m.ProcessorInvocations.With(ProcessorLabel, "other").Add(1)
	m.GotConnection.Add(1)
	m.LatestVersion.With(ProcessorLabel, "default").Set(9)

	assert.Equal(t, 3.0, r.Value("processor_invocations", ProcessorLabel, "default"))
	assert.Equal(t, 1.0, r.Value("processor_invocations", ProcessorLabel, "other"))
	assert.Equal(t, 1.0, r.Value("got_connection"))
	assert.Equal(t, 9.0, r.Value("processor_latest_version", ProcessorLabel, "default"))
	assert.Zero(t, r.Value("processor_errors", ProcessorLabel, "default"))
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	assert.NotPanics(t, func() {
		m.ProcessorErrors.With(ProcessorLabel, "default").Add(1)
		m.UnableToGetConnection.Add(1)
		m.ErrorVersions.With(ProcessorLabel, "default").Set(3)
	})
}
