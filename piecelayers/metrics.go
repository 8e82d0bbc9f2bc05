package piecelayers

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "piecetree"
	metricsSubsystem = "piece_layers"
)

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      name,
		Help:      help,
	})
}

var (
	hashesServed         = newCounter("hashes_served_total", "Piece layer hashes sent in reply to hash requests.")
	hashRequestsRejected = newCounter("hash_requests_rejected_total", "Hash requests answered with a reject.")
	hashesAccepted       = newCounter("hashes_accepted_total", "Received piece layer hashes that proved against their root.")
	hashesRejected       = newCounter("hashes_rejected_total", "Received hashes messages that failed to prove against their root.")
	hashRejectsReceived  = newCounter("hash_rejects_received_total", "Hash rejects received from peers.")
	filesVerified        = newCounter("files_verified_total", "Files whose complete piece layer was verified.")
)

// Registers the package's metrics. Nothing is registered by default.
func RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		hashesServed,
		hashRequestsRejected,
		hashesAccepted,
		hashesRejected,
		hashRejectsReceived,
		filesVerified,
	} {
		err := r.Register(c)
		if err != nil {
			return err
		}
	}
	return nil
}
