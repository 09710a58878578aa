package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure stages for gradeFailures.
const (
	stageUpsert = "upsert"
	stageLog    = "log"
	stageMutate = "mutate"
)

// Mutation modes for sessionMutations.
const (
	modeRefetch = "refetch"
	modeLocal   = "local"
)

var (
	gradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensum_grades_total",
		Help: "Grades committed to a session, by rating",
	}, []string{"rating"})

	gradeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensum_grade_failures_total",
		Help: "Grades that returned an error, by failing stage",
	}, []string{"stage"})

	sessionMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensum_session_mutations_total",
		Help: "Snapshot updates after a grade, by mode",
	}, []string{"mode"})

	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pensum_session_load_duration_seconds",
		Help:    "Time to build a session snapshot from the store",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
