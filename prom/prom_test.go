package prom

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBuild(100, 5*time.Millisecond, nil)
	c.RecordBuild(10, time.Millisecond, errors.New("boom"))
	c.RecordSearch(10, time.Millisecond, nil)
	c.RecordSearch(10, time.Millisecond, nil)
	c.RecordSearch(10, time.Millisecond, errors.New("boom"))
	c.RecordSnapshotSave(time.Millisecond, nil)
	c.RecordSnapshotLoad(time.Millisecond, errors.New("boom"))

	assert.InDelta(t, 2, testutil.ToFloat64(c.builds), 0)
	assert.InDelta(t, 110, testutil.ToFloat64(c.buildItems), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.buildErrors), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(c.searches), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.searchErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.snapshotSaves.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.snapshotLoads.WithLabelValues("error")), 0)
}

func TestCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	assert.Panics(t, func() { _ = NewCollector(reg) })
}
