package dedup

// TitleSimilarity scores two event titles in [0, 1]. It takes the better of
// a normalized edit-distance ratio and token-set Jaccard, so both near-exact
// strings ("Radiohead Live" vs "Radiohead — Live!") and reordered or
// punctuation-heavy variants score high, while genuinely different titles
// ("Radiohead" vs "Radiohead Tribute Night") stay below the merge threshold.
func TitleSimilarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1
	}
	er := editRatio(na, nb)
	if js := jaccard(tokenSet(na), tokenSet(nb)); js > er {
		return js
	}
	return er
}

// VenueSimilarity scores two venue names in [0, 1]. Articles are stripped
// first, then the better of edit-distance ratio and token overlap
// coefficient is taken: venues are routinely reported at different
// granularity ("The O2" vs "O2 Arena"), which overlap tolerates and Jaccard
// does not. Two empty names score 1 — absence agrees with absence — while
// empty-vs-present scores 0.
func VenueSimilarity(a, b string) float64 {
	na, nb := stripArticles(Normalize(a)), stripArticles(Normalize(b))
	if na == nb {
		return 1
	}
	if na == "" || nb == "" {
		return 0
	}
	er := editRatio(na, nb)
	if ov := overlap(tokenSet(na), tokenSet(nb)); ov > er {
		return ov
	}
	return er
}

// editRatio is 1 - levenshtein(a, b)/max(len(a), len(b)) over runes.
func editRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// jaccard is |a ∩ b| / |a ∪ b|.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// overlap is |a ∩ b| / min(|a|, |b|).
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(inter) / float64(smaller)
}
