package vector

import "math"

const maxIterations = 50

// Mean returns the element-wise arithmetic mean of the given vectors, or
// nil when the input is empty.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			sum[i] += float64(v[i])
		}
	}
	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sum {
		mean[i] = float32(s / n)
	}
	return mean
}

// KMeans clusters the vectors into k groups and returns the centroids.
// The result is deterministic for identical input: initialization picks the
// first vector, then repeatedly the vector farthest from its nearest chosen
// centroid, and refinement is Lloyd's algorithm with first-index tie
// breaking. Returned vectors never alias the input.
func KMeans(vectors [][]float32, k int) [][]float32 {
	n := len(vectors)
	if n == 0 || k <= 0 {
		return nil
	}

	if n <= k {
		out := make([][]float32, n)
		for i, v := range vectors {
			out[i] = append([]float32(nil), v...)
		}
		return out
	}

	centroids := initCentroids(vectors, k)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range centroids {
			var members [][]float32
			for i, a := range assignments {
				if a == c {
					members = append(members, vectors[i])
				}
			}
			// A centroid that lost all members keeps its position
			if len(members) > 0 {
				centroids[c] = Mean(members)
			}
		}
	}

	return centroids
}

// initCentroids seeds k centroids by farthest-point (max-min) sampling
// starting from the first vector.
func initCentroids(vectors [][]float32, k int) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, append([]float32(nil), vectors[0]...))

	for len(centroids) < k {
		bestIdx := 0
		bestDist := -1.0
		for i, v := range vectors {
			d := math.MaxFloat64
			for _, c := range centroids {
				if sq := squaredDistance(v, c); sq < d {
					d = sq
				}
			}
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		centroids = append(centroids, append([]float32(nil), vectors[bestIdx]...))
	}

	return centroids
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.MaxFloat64
	for i, c := range centroids {
		if d := squaredDistance(v, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// squaredDistance compares by squared Euclidean distance to avoid
// unnecessary square roots. Mismatched dimensions are treated as infinitely
// far apart.
func squaredDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
