package insight

import "math"

const (
	// minClusterSize is the smallest group the algorithm will report; anything
	// smaller falls into the noise bucket.
	minClusterSize = 3
	// minSamples is the neighbor count (self included) required for a point
	// to seed or extend a dense region.
	minSamples = 2
	// neighborEpsilon is the maximum cosine distance between neighbors.
	neighborEpsilon = 0.35
)

const noisePoint = -1

// densityGroups runs a DBSCAN pass over the vectors using cosine distance
// and returns member indices per group plus the indices of noise points.
// Groups smaller than minClusterSize are demoted to noise.
func densityGroups(vectors [][]float64) (groups [][]int, noise []int) {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = noisePoint
	}

	visited := make([]bool, n)
	next := 0

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true

		neighbors := regionQuery(vectors, i)
		if len(neighbors) < minSamples {
			continue
		}

		labels[i] = next
		for k := 0; k < len(neighbors); k++ {
			j := neighbors[k]
			if !visited[j] {
				visited[j] = true
				more := regionQuery(vectors, j)
				if len(more) >= minSamples {
					neighbors = appendNew(neighbors, more)
				}
			}
			if labels[j] == noisePoint {
				labels[j] = next
			}
		}
		next++
	}

	byLabel := make(map[int][]int)
	for i, label := range labels {
		if label == noisePoint {
			noise = append(noise, i)
			continue
		}
		byLabel[label] = append(byLabel[label], i)
	}

	for label := 0; label < next; label++ {
		members := byLabel[label]
		if len(members) < minClusterSize {
			noise = append(noise, members...)
			continue
		}
		groups = append(groups, members)
	}

	return groups, noise
}

// regionQuery returns the indices within neighborEpsilon of point i,
// including i itself.
func regionQuery(vectors [][]float64, i int) []int {
	var neighbors []int
	for j := range vectors {
		if cosineDistance(vectors[i], vectors[j]) <= neighborEpsilon {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}

func appendNew(base, extra []int) []int {
	present := make(map[int]struct{}, len(base))
	for _, v := range base {
		present[v] = struct{}{}
	}
	for _, v := range extra {
		if _, ok := present[v]; !ok {
			present[v] = struct{}{}
			base = append(base, v)
		}
	}
	return base
}

// cosineDistance is 1 minus cosine similarity; mismatched or zero vectors
// count as maximally distant.
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}

	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
