package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean es la media aritmética; cero para una muestra vacía.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// SampleStd es la desviación estándar con n-1 grados de libertad.
func SampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// PopulationStd es la desviación estándar con n grados de libertad.
func PopulationStd(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.PopStdDev(xs, nil)
}

// Percentile interpola linealmente entre los dos rangos más cercanos
// (mismo criterio que numpy por defecto). q en [0, 1].
//
// stat.LinInterp interpola en la posición p·n-1; se reescala q para que caiga
// en q·(n-1).
func Percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	p := (q*(n-1) + 1) / n
	return stat.Quantile(math.Min(math.Max(p, 0), 1), stat.LinInterp, sorted, nil)
}

// Median es el percentil 50.
func Median(xs []float64) float64 {
	return Percentile(xs, 0.5)
}

func studentT(df float64) distuv.StudentsT {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
}

// studentTCDF es la función de distribución de la t de Student con df grados de libertad.
func studentTCDF(t, df float64) float64 {
	return studentT(df).CDF(t)
}

// studentTQuantile es la inversa de studentTCDF. p en (0, 1).
func studentTQuantile(p, df float64) float64 {
	return studentT(df).Quantile(p)
}
