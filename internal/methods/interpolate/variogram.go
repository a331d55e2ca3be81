package interpolate

import (
	"math"

	"github.com/mapforge/spatialkit/internal/geom"
	"github.com/mapforge/spatialkit/internal/numeric"
)

// variogramModel evaluates a fitted theoretical semivariogram at lag h.
type variogramModel struct {
	kind   string // spherical, exponential, gaussian
	nugget float64
	sill   float64
	rang   float64
}

func (m variogramModel) at(h float64) float64 {
	if h <= 0 {
		return 0
	}
	partial := m.sill - m.nugget
	switch m.kind {
	case "exponential":
		return m.nugget + partial*(1-math.Exp(-3*h/m.rang))
	case "gaussian":
		return m.nugget + partial*(1-math.Exp(-3*h*h/(m.rang*m.rang)))
	default: // spherical
		if h >= m.rang {
			return m.sill
		}
		r := h / m.rang
		return m.nugget + partial*(1.5*r-0.5*r*r*r)
	}
}

// empiricalBin is one lag bin of the method-of-moments semivariogram.
type empiricalBin struct {
	lag   float64
	gamma float64
	pairs int
}

// empiricalSemivariogram bins half squared differences by pair
// distance up to maxLag.
func empiricalSemivariogram(pts []geom.Point, values []float64, lags int, maxLag float64) []empiricalBin {
	if lags <= 0 {
		lags = 12
	}
	width := maxLag / float64(lags)
	bins := make([]empiricalBin, lags)
	for b := range bins {
		bins[b].lag = width * (float64(b) + 0.5)
	}

	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			d := pts[i].DistanceTo(pts[j])
			if d > maxLag || d == 0 {
				continue
			}
			b := int(d / width)
			if b >= lags {
				b = lags - 1
			}
			diff := values[i] - values[j]
			bins[b].gamma += diff * diff / 2
			bins[b].pairs++
		}
	}

	out := bins[:0]
	for _, b := range bins {
		if b.pairs > 0 {
			b.gamma /= float64(b.pairs)
			out = append(out, b)
		}
	}
	return out
}

// fitVariogram estimates nugget, sill and range from the empirical
// bins: nugget from the shortest populated lag, sill from the field
// variance, range where the empirical curve first reaches 95% of sill.
func fitVariogram(kind string, bins []empiricalBin, values []float64, maxLag float64) variogramModel {
	m := variogramModel{
		kind: kind,
		sill: numeric.Variance(values),
		rang: maxLag / 2,
	}
	if m.sill <= 0 {
		m.sill = 1e-10
	}
	if len(bins) == 0 {
		return m
	}

	m.nugget = math.Min(bins[0].gamma, m.sill*0.999)
	if m.nugget < 0 {
		m.nugget = 0
	}
	for _, b := range bins {
		if b.gamma >= 0.95*m.sill {
			m.rang = b.lag
			break
		}
	}
	if m.rang <= 0 {
		m.rang = maxLag / 2
	}
	return m
}
