package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with custom options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should register its collectors there", func() {
				So(manager, ShouldNotBeNil)
				manager.fetchesTotal.WithLabelValues(OutcomeSuccess).Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "test_unit_fetches_total")
			})
		})

		Convey("When empty options are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "routedata")
				So(manager.histogramBuckets, ShouldResemble, latencyBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording queries", func() {
			before := testutil.ToFloat64(globalManager.queriesTotal.WithLabelValues("tags", "read", OutcomeError))
			RecordQuery("tags", "read", OutcomeError, 12)

			Convey("Then the labelled counter increases", func() {
				after := testutil.ToFloat64(globalManager.queriesTotal.WithLabelValues("tags", "read", OutcomeError))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When a query starts and finishes", func() {
			before := testutil.ToFloat64(globalManager.queriesInFlight)
			QueryStarted()
			during := testutil.ToFloat64(globalManager.queriesInFlight)
			QueryFinished()

			Convey("Then the in-flight gauge returns to its level", func() {
				So(during-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.queriesInFlight), ShouldEqual, before)
			})
		})

		Convey("When recording fetches and HTTP traffic", func() {
			before := testutil.ToFloat64(globalManager.fetchesTotal.WithLabelValues(OutcomeSuccess))

			So(func() {
				RecordFetch(OutcomeSuccess, 3.5, 2)
				RecordHTTPRequest("routes", "GET", "200")
				RecordHTTPRequestDuration("routes", "GET", "200", 4)
				RecordErrorByType("not_found", "medium")
				RecordErrorByEndpoint("routes", "GET", "not_found")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(7)
			}, ShouldNotPanic)

			Convey("Then the fetch counter increases", func() {
				So(testutil.ToFloat64(globalManager.fetchesTotal.WithLabelValues(OutcomeSuccess))-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldEqual, 7)
			})
		})

		Convey("Then the custom registry is exposed", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
