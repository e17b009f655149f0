package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithPrometheusRegistry(registry),
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
			)

			Convey("Then collectors are registered under the configured names", func() {
				So(m, ShouldNotBeNil)
				m.eventsGenerated.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := make(map[string]bool)
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_unit_events_generated_total"], ShouldBeTrue)
			})
		})

		Convey("When the same registry is reused", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then a second manager collides", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording admission decisions", func() {
			before := testutil.ToFloat64(globalManager.admissionDecisions.WithLabelValues("denied"))
			RecordAdmission(false)
			RecordAdmission(true)

			Convey("Then denials are counted under their own label", func() {
				So(testutil.ToFloat64(globalManager.admissionDecisions.WithLabelValues("denied")), ShouldEqual, before+1)
			})
		})

		Convey("When updating producer gauges", func() {
			UpdateProducerRate(250)
			UpdateProducerRunning(true)
			UpdateProducerPending(7)

			Convey("Then the gauges reflect the latest values", func() {
				So(testutil.ToFloat64(globalManager.producerRate), ShouldEqual, 250)
				So(testutil.ToFloat64(globalManager.producerRunning), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.producerPending), ShouldEqual, 7)
			})
		})

		Convey("When recording a broadcast", func() {
			before := testutil.ToFloat64(globalManager.broadcastDeliveries)
			RecordBroadcast("batch", 3, 1.5)

			Convey("Then deliveries accumulate", func() {
				So(testutil.ToFloat64(globalManager.broadcastDeliveries), ShouldEqual, before+3)
			})
		})

		Convey("When calling the remaining recorders", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					UpdateLimiterActiveBuckets(3)
					RecordLimiterSwept(2)
					RecordEventGenerated()
					RecordBatchFlushed(10)
					RecordPersistResult(true)
					RecordPersistResult(false)
					RecordPersistLatency(4)
					RecordPersistDropped()
					UpdateQueueSize(1)
					UpdateQueueCapacity(10)
					UpdateWorkerActiveCount(2)
					UpdateWorkerBatchesPerSecond(1.5)
					UpdateSubscribers(5)
					RecordSubscriberPruned()
					RecordClientTransition("connected")
					RecordClientReconnect()
					RecordClientMalformed()
					RecordClientOutboundDropped()
					UpdateClientThroughput(12.5)
					UpdateClientStored(100)
					RecordHTTPRequest("stats", "GET", "200")
					RecordHTTPRequestDuration("stats", "GET", "200", 2)
					RecordErrorByComponent("hub", "send_failed")
					RecordErrorByEndpoint("stats", "GET", "client_error")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(10)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
				So(GetRegistry(), ShouldNotBeNil)
			})
		})
	})
}
