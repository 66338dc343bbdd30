package analysis

import "sort"

// Bonferroni marca como significativo cada p-valor <= alpha/n.
func Bonferroni(pvalues []float64, alpha float64) []bool {
	out := make([]bool, len(pvalues))
	if len(pvalues) == 0 {
		return out
	}
	threshold := alpha / float64(len(pvalues))
	for i, p := range pvalues {
		out[i] = p <= threshold
	}
	return out
}

// BenjaminiHochberg controla la tasa de falsos descubrimientos: con los
// p-valores ordenados, busca el mayor k tal que p(k) <= k/n·alpha y marca
// como significativos los k más pequeños.
func BenjaminiHochberg(pvalues []float64, alpha float64) []bool {
	n := len(pvalues)
	out := make([]bool, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return pvalues[order[a]] < pvalues[order[b]] })

	for k := n - 1; k >= 0; k-- {
		if pvalues[order[k]] <= float64(k+1)/float64(n)*alpha {
			for _, idx := range order[:k+1] {
				out[idx] = true
			}
			break
		}
	}
	return out
}
