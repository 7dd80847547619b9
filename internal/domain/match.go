package domain

// MatchModel reports whether model matches a glob pattern.
// '*' matches any run of characters (including none), '?' matches exactly one
// character, everything else is literal. Matching is anchored and case-sensitive;
// '/' has no special meaning, so "meta-llama/*" matches "meta-llama/llama-3".
func MatchModel(model, pattern string) bool {
	if pattern == "*" || pattern == model {
		return true
	}

	m := []rune(model)
	p := []rune(pattern)

	mi, pi := 0, 0
	starPi, starMi := -1, 0

	for mi < len(m) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == m[mi]):
			mi++
			pi++
		case pi < len(p) && p[pi] == '*':
			starPi = pi
			starMi = mi
			pi++
		case starPi >= 0:
			// Backtrack: let the last star absorb one more character.
			pi = starPi + 1
			starMi++
			mi = starMi
		default:
			return false
		}
	}

	for pi < len(p) && p[pi] == '*' {
		pi++
	}

	return pi == len(p)
}
