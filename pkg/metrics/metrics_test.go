package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("engine"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics register on that registry with the given names", func() {
				So(manager, ShouldNotBeNil)
				manager.eventsDuplicate.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_engine_events_duplicate_total"], ShouldBeTrue)
				So(names["test_engine_paused"], ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then the defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "hackcast")
				So(manager.subsystem, ShouldEqual, "broadcast")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When ingest metrics are recorded", func() {
			before := testutil.ToFloat64(globalManager.eventsNormalized.WithLabelValues("bet_placed", "breaking"))
			RecordEventNormalized("bet_placed", "breaking")
			RecordEventDropped("below_threshold")
			RecordEventDuplicate()
			RecordFeedMessage("bets")
			RecordFeedDecodeError()

			Convey("Then the labelled counter moves", func() {
				after := testutil.ToFloat64(globalManager.eventsNormalized.WithLabelValues("bet_placed", "breaking"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When broadcast gauges are set", func() {
			UpdateHotness("h-1", 42.5)
			UpdatePaused(true)
			UpdateViewers(3)
			UpdateWebSocketClients(2)

			Convey("Then they hold the latest values", func() {
				So(testutil.ToFloat64(globalManager.hotness.WithLabelValues("h-1")), ShouldEqual, 42.5)
				So(testutil.ToFloat64(globalManager.paused), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.viewers), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.websocketClients), ShouldEqual, 2)

				UpdatePaused(false)
				So(testutil.ToFloat64(globalManager.paused), ShouldEqual, 0)
			})
		})

		Convey("When playback and queue metrics are recorded", func() {
			So(func() {
				RecordPhaseTransition("BUMPER_IN")
				RecordHackathonSwitch("breaking")
				RecordContentGeneration("narrator", 12.5)
				RecordNarrationError()
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				RecordWorkerProcessingLatency(3)
				RecordWorkerError()
				RecordHTTPRequest("/state", "GET", "200")
				RecordHTTPRequestDuration("/state", "GET", "200", 1.5)
			}, ShouldNotPanic)
		})

		Convey("Then the exported registry is the custom one", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.queueEnqueue)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordQueueEnqueue()
				}
			}()
		}
		wg.Wait()

		Convey("Then no increments are lost", func() {
			So(testutil.ToFloat64(globalManager.queueEnqueue)-before, ShouldEqual, 1000)
		})
	})
}
