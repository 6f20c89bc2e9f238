package signal

import (
	"math"

	"fusion-trader/internal/models"
)

// maxStrength is the widest possible rule score, used to normalize the
// technical signal onto the sentiment scale.
const maxStrength = 4.0

// sentimentScale is the range sentiment readings and the fused signal live
// on, [-sentimentScale, +sentimentScale].
const sentimentScale = 3.0

// Fusion is the blended decision input produced from a technical reading and
// a sentiment reading.
type Fusion struct {
	// Tech is the technical signal normalized to [-3, +3].
	Tech float64
	// Sentiment is the combined sentiment signal, [-3, +3].
	Sentiment float64
	// Final is the weighted blend of Tech and Sentiment.
	Final float64
	// Confidence is |Final| mapped to a 0-100 scale.
	Confidence float64
	// Action is the direction implied by Final under the supplied threshold.
	Action models.Action
	// SentimentUsed is false when the sentiment collaborator was unavailable
	// and a neutral reading was substituted.
	SentimentUsed bool
}

// Fuse blends the technical reading with sentiment. The sentiment weight w
// must be in [0, 1]; the fused signal crosses into BUY or SELL territory at
// +-minStrength on the normalized scale.
func Fuse(tech Reading, sent models.SentimentReading, w, minStrength float64, sentimentUsed bool) Fusion {
	techNorm := tech.Strength / maxStrength * sentimentScale
	final := techNorm*(1-w) + sent.CombinedSignal*w

	confidence := math.Abs(final) / sentimentScale * 100
	if confidence > 100 {
		confidence = 100
	}

	action := models.ActionHold
	switch {
	case final >= minStrength:
		action = models.ActionBuy
	case final <= -minStrength:
		action = models.ActionSell
	}

	return Fusion{
		Tech:          techNorm,
		Sentiment:     sent.CombinedSignal,
		Final:         final,
		Confidence:    confidence,
		Action:        action,
		SentimentUsed: sentimentUsed,
	}
}
