package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "triviad",
		Name:      "active_sessions",
		Help:      "Number of game sessions currently registered.",
	})

	RoundsPlayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "triviad",
		Name:      "rounds_played_total",
		Help:      "Number of question rounds completed.",
	})

	AnswersScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "triviad",
		Name:      "answers_scored_total",
		Help:      "Number of answers scored, by result.",
	}, []string{"result"})
)

const (
	AnswerCorrect = "correct"
	AnswerWrong   = "wrong"
)
