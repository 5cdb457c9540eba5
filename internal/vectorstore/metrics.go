package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CorruptCollectionsDetected counts chromem collections found without
	// a metadata file.
	CorruptCollectionsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "vectorstore",
			Name:      "corrupt_collections_detected_total",
			Help:      "Total number of corrupt chromem collections detected on open",
		},
	)

	// QuarantineOperations counts quarantine moves.
	// Labels: result (success, error, invalid)
	QuarantineOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragindex",
			Subsystem: "vectorstore",
			Name:      "quarantine_operations_total",
			Help:      "Total number of chromem collection quarantine operations",
		},
		[]string{"result"},
	)
)
