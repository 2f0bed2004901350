package util

// Match reports whether key matches the glob pattern using redis SCAN MATCH
// semantics: '*' matches any run (including ':' and '/'), '?' one byte,
// '[...]' a class with ranges and leading '^' negation, '\' escapes.
func Match(pattern, key string) bool {
	p, k := 0, 0
	starP, starK := -1, 0
	for k < len(key) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				starP, starK = p, k
				p++
				continue
			case '?':
				p++
				k++
				continue
			case '[':
				if ok, next := matchClass(pattern, p, key[k]); next > 0 {
					if ok {
						p = next
						k++
						continue
					}
					goto backtrack
				}
			case '\\':
				if p+1 < len(pattern) {
					if pattern[p+1] == key[k] {
						p += 2
						k++
						continue
					}
					goto backtrack
				}
			}
			if pattern[p] == key[k] {
				p++
				k++
				continue
			}
		}
	backtrack:
		if starP < 0 {
			return false
		}
		starK++
		p, k = starP+1, starK
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchClass evaluates a [...] class starting at pattern[start].
// next is 0 when the class is unterminated (treated as a literal '[').
func matchClass(pattern string, start int, c byte) (ok bool, next int) {
	i := start + 1
	negate := false
	if i < len(pattern) && pattern[i] == '^' {
		negate = true
		i++
	}
	matched := false
	first := true
	for i < len(pattern) {
		if pattern[i] == ']' && !first {
			if negate {
				matched = !matched
			}
			return matched, i + 1
		}
		first = false
		lo := pattern[i]
		if lo == '\\' && i+1 < len(pattern) {
			i++
			lo = pattern[i]
		}
		hi := lo
		if i+2 < len(pattern) && pattern[i+1] == '-' && pattern[i+2] != ']' {
			hi = pattern[i+2]
			i += 2
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		if c >= lo && c <= hi {
			matched = true
		}
		i++
	}
	return false, 0
}
