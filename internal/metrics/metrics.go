// Package metrics exposes the Prometheus collectors of the sync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector groups the service metrics. A nil *Collector records nothing.
type Collector struct {
	syncPasses        *prometheus.CounterVec
	syncDuration      prometheus.Histogram
	accountFailures   *prometheus.CounterVec
	videosClassified  *prometheus.CounterVec
	videosInvalid     *prometheus.CounterVec
	thumbnailRefresh  prometheus.Counter
	playlistMaxAge    *prometheus.HistogramVec
	followingRemovals prometheus.Counter

	gcRuns      *prometheus.CounterVec
	gcEvictions *prometheus.CounterVec
	gcDuration  prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		syncPasses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_sync_passes_total",
			Help: "Sync passes by outcome",
		}, []string{"outcome"}),

		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_sync_pass_duration_seconds",
			Help:    "Duration of sync passes",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		accountFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_sync_account_failures_total",
			Help: "Accounts that failed during a sync pass",
		}, []string{"platform"}),

		videosClassified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_videos_classified_total",
			Help: "Videos stamped by the freshness calculator",
		}, []string{"platform", "state", "free_chat"}),

		videosInvalid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_videos_invalid_total",
			Help: "Fetched videos skipped for inconsistent broadcast fields",
		}, []string{"platform"}),

		thumbnailRefresh: f.NewCounter(prometheus.CounterOpts{
			Name: "timetable_thumbnail_refresh_requests_total",
			Help: "Thumbnail refresh requests emitted",
		}),

		playlistMaxAge: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "timetable_playlist_max_age_seconds",
			Help:    "Max age assigned to playlist snapshots",
			Buckets: prometheus.ExponentialBuckets(300, 2, 10),
		}, []string{"changed"}),

		followingRemovals: f.NewCounter(prometheus.CounterOpts{
			Name: "timetable_following_removed_total",
			Help: "Broadcasters detected as unfollowed",
		}),

		gcRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_gc_runs_total",
			Help: "Garbage collection passes by outcome",
		}, []string{"outcome"}),

		gcEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_gc_evictions_total",
			Help: "Rows removed by garbage collection",
		}, []string{"kind"}),

		gcDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_gc_duration_seconds",
			Help:    "Duration of garbage collection passes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
	}
}

// RecordSyncPass records a finished pass.
func (c *Collector) RecordSyncPass(duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.syncPasses.WithLabelValues(outcome(err)).Inc()
	c.syncDuration.Observe(duration.Seconds())
}

// RecordAccountFailure counts an account whose sync failed.
func (c *Collector) RecordAccountFailure(platform string) {
	if c == nil {
		return
	}
	c.accountFailures.WithLabelValues(platform).Inc()
}

// RecordClassification counts one stamped video.
func (c *Collector) RecordClassification(platform, state string, freeChat bool) {
	if c == nil {
		return
	}
	fc := "false"
	if freeChat {
		fc = "true"
	}
	c.videosClassified.WithLabelValues(platform, state, fc).Inc()
}

// RecordInvalidVideo counts a fetched video that failed validation.
func (c *Collector) RecordInvalidVideo(platform string) {
	if c == nil {
		return
	}
	c.videosInvalid.WithLabelValues(platform).Inc()
}

// RecordThumbnailRefresh counts an emitted thumbnail refresh request.
func (c *Collector) RecordThumbnailRefresh() {
	if c == nil {
		return
	}
	c.thumbnailRefresh.Inc()
}

// RecordPlaylistMaxAge observes the max age chosen for a playlist.
func (c *Collector) RecordPlaylistMaxAge(maxAge time.Duration, changed bool) {
	if c == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	c.playlistMaxAge.WithLabelValues(label).Observe(maxAge.Seconds())
}

// RecordFollowingRemovals counts unfollowed broadcasters.
func (c *Collector) RecordFollowingRemovals(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.followingRemovals.Add(float64(n))
}

// RecordGC records a collection pass. evictions maps a row kind to the
// number of rows removed and is ignored for failed passes.
func (c *Collector) RecordGC(duration time.Duration, evictions map[string]int, err error) {
	if c == nil {
		return
	}
	c.gcRuns.WithLabelValues(outcome(err)).Inc()
	c.gcDuration.Observe(duration.Seconds())
	if err != nil {
		return
	}
	for kind, n := range evictions {
		c.gcEvictions.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordGCSkipped counts a pass that did not run because another one held
// the lock.
func (c *Collector) RecordGCSkipped() {
	if c == nil {
		return
	}
	c.gcRuns.WithLabelValues("skipped").Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
