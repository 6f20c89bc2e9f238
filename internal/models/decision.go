package models

import "time"

// Decision represents one evaluated trading cycle, including HOLDs.
type Decision struct {
	ID            int64
	Timestamp     time.Time
	Action        Action
	FinalSignal   float64 // fused score in [-3, +3]
	TechSignal    float64 // normalized technical component in [-3, +3]
	SentSignal    float64 // sentiment component in [-3, +3]
	Confidence    float64 // [0, 100]
	Reason        string  // short action rationale
	Reasoning     string  // composed narrative rationale
	Thresholds    AdaptiveThresholds
	HaltReason    string // set when the risk breaker produced this decision
	SentimentUsed SentimentLabel
}

// Halted reports whether this decision was produced by the circuit breaker.
func (d *Decision) Halted() bool {
	return d.HaltReason != ""
}
