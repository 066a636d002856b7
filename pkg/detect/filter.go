package detect

// Filter reduces the classifier output for one frame to at most one
// prediction. Candidates below MinConfidence are dropped; with geometry
// enabled, boxes whose area percent or aspect ratio fall outside the
// configured (inclusive) bounds are dropped too. The most confident
// survivor wins, ties going to the first one seen.
//
// frameArea is the frame size in pixels. It is only consulted when
// geometry checks are enabled.
func Filter(cfg EngineConfig, preds []Prediction, frameArea float64) *AcceptedPrediction {
	var best *AcceptedPrediction

	for _, p := range preds {
		if p.Label == "" || p.Confidence < cfg.MinConfidence {
			continue
		}

		var areaPct float64
		if frameArea > 0 {
			areaPct = p.Area() * 100 / frameArea
		}

		if cfg.GeometryEnabled && !plausible(cfg, p, areaPct) {
			continue
		}

		if best == nil || p.Confidence > best.Confidence {
			best = &AcceptedPrediction{Prediction: p, AreaPercent: areaPct}
		}
	}

	return best
}

func plausible(cfg EngineConfig, p Prediction, areaPct float64) bool {
	if p.Width <= 0 || p.Height <= 0 {
		return false
	}
	if areaPct < cfg.MinAreaPercent || areaPct > cfg.MaxAreaPercent {
		return false
	}
	ratio := p.AspectRatio()
	return ratio >= cfg.MinAspectRatio && ratio <= cfg.MaxAspectRatio
}
