package notification

import (
	"testing"

	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitalops/livemon/internal/errors"
	"github.com/hospitalops/livemon/internal/logger"
)

type fakeSender struct {
	message string
	params  types.Params
	errs    []error
}

func (f *fakeSender) Send(message string, params *types.Params) []error {
	f.message = message
	f.params = *params
	return f.errs
}

func TestShoutrrrNotifier_SendsTitleAndBody(t *testing.T) {
	t.Parallel()

	s := &fakeSender{errs: []error{nil}}
	n := newShoutrrrNotifier(s, 1, logger.Discard())

	granted, err := n.Permission(t.Context())
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, n.Show(t.Context(), "High alert: x", "cpuUsage > 90%", "a1"))
	assert.Equal(t, "cpuUsage > 90%", s.message)
	title, ok := s.params.Title()
	require.True(t, ok)
	assert.Equal(t, "High alert: x", title)
}

func TestShoutrrrNotifier_PartialAndTotalFailure(t *testing.T) {
	t.Parallel()

	partial := newShoutrrrNotifier(&fakeSender{errs: []error{nil, errors.NewStd("timeout")}}, 2, logger.Discard())
	assert.NoError(t, partial.Show(t.Context(), "t", "b", "a1"))

	total := newShoutrrrNotifier(&fakeSender{errs: []error{errors.NewStd("timeout")}}, 1, logger.Discard())
	err := total.Show(t.Context(), "t", "b", "a1")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryNetwork, errors.CategoryOf(err))
}

func TestNewShoutrrrNotifier_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewShoutrrrNotifier(nil, logger.Discard())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfiguration, errors.CategoryOf(err))

	_, err = NewShoutrrrNotifier([]string{"not a service url"}, logger.Discard())
	require.Error(t, err)
}
