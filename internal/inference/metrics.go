package inference

import (
	"anomaly-detection-api/internal/scoring"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferencesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anomaly_api_inferences_completed_total",
		Help: "Total number of inference runs that completed successfully.",
	})
	inferencesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anomaly_api_inferences_failed_total",
		Help: "Total number of inference attempts that failed.",
	})
	rowsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anomaly_api_rows_scored_total",
		Help: "Total number of samples scored by the discriminator.",
	})
	anomaliesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anomaly_api_anomalies_detected_total",
		Help: "Total number of samples classified as anomalies.",
	})
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anomaly_api_batch_duration_seconds",
		Help:    "Wall-clock duration of one discriminator batch.",
		Buckets: prometheus.DefBuckets,
	})
)

func recordSuccess(result scoring.Result) {
	inferencesCompleted.Inc()
	rowsScored.Add(float64(result.TotalSamples))
	anomaliesDetected.Add(float64(result.AnomalyCount))
	batchDuration.Observe(result.InferenceTimeMS / 1000)
}

func recordFailure() {
	inferencesFailed.Inc()
}
