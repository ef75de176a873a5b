package engine

// levenshtein is the classic edit-distance, used by closestMatch to find a
// candidate name close enough to a mistyped relation or attribute to be
// worth suggesting (§4.8's printCloseStrings hook).
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// closestMatch returns the candidate with the smallest edit distance to
// target, accepted only if that distance is small relative to the target's
// own length (otherwise two unrelated names would still "match").
func closestMatch(target string, candidates []string) (string, bool) {
	best := ""
	bestDist := -1
	for _, c := range candidates {
		d := levenshtein(target, c)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist == -1 {
		return "", false
	}
	threshold := len(target)/2 + 1
	if threshold < 2 {
		threshold = 2
	}
	if bestDist > threshold {
		return "", false
	}
	return best, true
}
