package risk

// CompositeScore maps a set of evaluated flags to a 0-100 composite score
// using the piecewise-linear ratio map decided for spec.md §9's open
// question: anchors at measured/limit ratio 0 -> 100, 1.0 -> 70,
// 2.0 -> 30, 5.0 -> 0, floored at 0 above 5x, linearly interpolated between
// anchors. The score reflects the single worst (highest-ratio) flag, since
// one severe breach should dominate the score rather than being diluted by
// many minor warnings.
func CompositeScore(flags []Flag) float64 {
	if len(flags) == 0 {
		return 100
	}
	worst := 0.0
	for _, f := range flags {
		if f.Limit <= 0 {
			continue
		}
		ratio := f.Measured / f.Limit
		if ratio < 0 {
			ratio = -ratio
		}
		if ratio > worst {
			worst = ratio
		}
	}
	return scoreForRatio(worst)
}

// scoreForRatio implements the anchor table directly.
func scoreForRatio(ratio float64) float64 {
	switch {
	case ratio <= 1.0:
		// Linear from (0 -> 100) to (1.0 -> 70).
		return lerp(ratio, 0, 1.0, 100, 70)
	case ratio <= 2.0:
		return lerp(ratio, 1.0, 2.0, 70, 30)
	case ratio <= 5.0:
		return lerp(ratio, 2.0, 5.0, 30, 0)
	default:
		return 0
	}
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}
