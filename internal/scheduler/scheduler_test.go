package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/i474232898/environmental-data-aggregation/internal/region"
)

type fakeRefresher struct {
	regions []region.Region

	mu        sync.Mutex
	refreshed []string
}

func (f *fakeRefresher) HotRegions() []region.Region { return f.regions }

func (f *fakeRefresher) Refresh(ctx context.Context, r region.Region) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("refresh without deadline")
	}
	f.mu.Lock()
	f.refreshed = append(f.refreshed, r.Key())
	f.mu.Unlock()
	if r.Key() == "pune" {
		return errors.New("provider down")
	}
	return nil
}

func (f *fakeRefresher) Refreshed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshed...)
}

func TestRunOnceRefreshesHotRegions(t *testing.T) {
	f := &fakeRefresher{regions: []region.Region{
		{ID: "darbhanga", Latitude: 26.15, Longitude: 85.90},
		{ID: "pune", Latitude: 18.52, Longitude: 73.86},
	}}
	s := New(f, time.Minute, time.Second, zerolog.Nop())

	s.RunOnce(context.Background())
	assert.ElementsMatch(t, []string{"darbhanga", "pune"}, f.Refreshed())
}

func TestRunOnceWithoutHotRegions(t *testing.T) {
	f := &fakeRefresher{}
	New(f, time.Minute, time.Second, zerolog.Nop()).RunOnce(context.Background())
	assert.Empty(t, f.Refreshed())
}

func TestStartRunsPeriodically(t *testing.T) {
	f := &fakeRefresher{regions: []region.Region{{ID: "delhi", Latitude: 28.61, Longitude: 77.21}}}
	s := New(f, time.Second, time.Second, zerolog.Nop())

	assert.NoError(t, s.Start())
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return len(f.Refreshed()) > 0
	}, 3*time.Second, 50*time.Millisecond)
}
