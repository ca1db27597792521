package lib

import "time"

// EWMA gains for the smoothed-RTT / mean-deviation estimator.
const (
	rttAlpha = 0.125
	rttBeta  = 0.25
)

// rttEstimator maintains a smoothed round-trip-time estimate and deviation
// and derives the retransmission timeout used by the reliable-send engine.
// It must only be fed samples from exchanges that did not suffer a timeout
// (Karn's rule): a timed-out-then-retried exchange measures retransmission
// ambiguity, not true RTT.
type rttEstimator struct {
	estimatedRTT time.Duration
	devRTT       time.Duration
	minRTO       time.Duration // floor for the derived timeout
}

func newRTTEstimator(estimatedRTT, devRTT, minRTO time.Duration) *rttEstimator {
	if estimatedRTT <= 0 {
		estimatedRTT = DefaultEstimatedRTT
	}
	if devRTT <= 0 {
		devRTT = DefaultDevRTT
	}
	if minRTO <= 0 {
		minRTO = DefaultMinRTO
	}
	return &rttEstimator{
		estimatedRTT: estimatedRTT,
		devRTT:       devRTT,
		minRTO:       minRTO,
	}
}

// recordSample folds a fresh RTT measurement into the estimate:
//
//	estimatedRTT = (1-α)*estimatedRTT + α*sample
//	devRTT       = (1-β)*devRTT + β*|sample - estimatedRTT|
func (r *rttEstimator) recordSample(sample time.Duration) {
	r.estimatedRTT = time.Duration((1-rttAlpha)*float64(r.estimatedRTT) + rttAlpha*float64(sample))

	deviation := sample - r.estimatedRTT
	if deviation < 0 {
		deviation = -deviation
	}
	r.devRTT = time.Duration((1-rttBeta)*float64(r.devRTT) + rttBeta*float64(deviation))
}

// timeout returns the current retransmission timeout, estimatedRTT + 4*devRTT,
// never below the configured floor.
func (r *rttEstimator) timeout() time.Duration {
	rto := r.estimatedRTT + 4*r.devRTT
	if rto < r.minRTO {
		rto = r.minRTO
	}
	return rto
}
