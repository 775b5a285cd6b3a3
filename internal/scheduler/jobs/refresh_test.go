package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/newsdeck/backend/internal/dashboard"
)

type fakeRebuilder struct {
	calls int
	err   error
}

func (f *fakeRebuilder) Rebuild(context.Context) (*dashboard.Payload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &dashboard.Payload{Summary: dashboard.Summary{Count: 3}}, nil
}

func TestCacheRefreshJob(t *testing.T) {
	b := &fakeRebuilder{}
	var got *dashboard.Payload
	job := NewCacheRefreshJob(b, "0 */30 * * * *", nil).After(func(p *dashboard.Payload) { got = p })

	assert.Equal(t, "cache_refresh", job.Name())
	assert.Equal(t, "0 */30 * * * *", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, b.calls)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Summary.Count)
}

func TestCacheRefreshJob_BeforeFailureSkipsRebuild(t *testing.T) {
	b := &fakeRebuilder{}
	job := NewCacheRefreshJob(b, "@hourly", nil).Before(func(context.Context) error {
		return errors.New("build failed")
	})

	assert.EqualError(t, job.Run(context.Background()), "build failed")
	assert.Zero(t, b.calls)
}

func TestCacheRefreshJob_RebuildError(t *testing.T) {
	job := NewCacheRefreshJob(&fakeRebuilder{err: errors.New("disk full")}, "@hourly", nil)
	assert.Error(t, job.Run(context.Background()))
}
