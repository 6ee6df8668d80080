package gate

import "sync/atomic"

// Stats are the shared atomic counters every gate (Filter path aside,
// which has none per spec) reports: total_processed, total_accepted,
// total_rejected, plus per-level counts (spec §4.3). accepted+rejected
// always equals processed.
type Stats struct {
	TotalProcessed atomic.Int64
	TotalAccepted  atomic.Int64
	TotalRejected  atomic.Int64

	perLevel [256]atomic.Int64
}

func (s *Stats) record(accepted bool, priority uint8) {
	s.TotalProcessed.Add(1)
	if accepted {
		s.TotalAccepted.Add(1)
		s.perLevel[priority].Add(1)
	} else {
		s.TotalRejected.Add(1)
	}
}

// PerLevel returns the accepted count observed at the given priority.
func (s *Stats) PerLevel(priority uint8) int64 {
	return s.perLevel[priority].Load()
}

// CurrentRate reports the accept ratio observed so far (accepted /
// processed), 0 when nothing has been processed yet.
func (s *Stats) CurrentRate() float64 {
	processed := s.TotalProcessed.Load()
	if processed == 0 {
		return 0
	}
	return float64(s.TotalAccepted.Load()) / float64(processed)
}
