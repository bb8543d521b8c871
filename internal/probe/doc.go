// Package probe performs single timed health check requests against a
// backend and classifies the response with a pluggable predicate.
//
// A probe races the request against its timeout. Whichever finishes first
// decides the outcome and anything arriving later is dropped:
//
//	prober := probe.New()
//	res := prober.Probe(ctx, req, time.Second, probe.StatusOK)
//	if !res.Healthy {
//	    // res.Err holds the cause, res.TimedOut tells a deadline miss apart
//	}
package probe
