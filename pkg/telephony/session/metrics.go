package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callwise_sessions_started_total",
		Help: "Call sessions that reached a start event.",
	})
	metricSessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callwise_sessions_ended_total",
		Help: "Call sessions ended, by outcome.",
	}, []string{"outcome"})
	metricTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callwise_turns_processed_total",
		Help: "Final transcripts processed into conversation turns.",
	})
	metricBargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callwise_barge_ins_total",
		Help: "Playback interruptions triggered by caller audio.",
	})
	metricFramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callwise_frames_dropped_total",
		Help: "Inbound media frames dropped due to decode failures.",
	})
	metricTurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callwise_turn_latency_seconds",
		Help:    "Latency from final transcript to generated response.",
		Buckets: prometheus.DefBuckets,
	})
)
