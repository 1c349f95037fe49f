package snmp

import "strings"

// OIDFollows reports whether next sorts strictly after oid when both are
// compared arc by arc as numbers. A proper prefix sorts first. Both strings
// must be in dotted decimal form.
func OIDFollows(oid, next string) bool {
	i, j := 0, 0
	for {
		a, okA := nextArc(oid, &i)
		b, okB := nextArc(next, &j)
		switch {
		case !okA:
			return okB
		case !okB:
			return false
		case a != b:
			return b > a
		}
	}
}

// nextArc parses the arc starting at *pos and advances past its dot.
func nextArc(oid string, pos *int) (uint64, bool) {
	if *pos >= len(oid) {
		return 0, false
	}
	var n uint64
	for *pos < len(oid) {
		c := oid[*pos]
		*pos++
		if c == '.' {
			break
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}

// OIDInSubtree reports whether oid equals root or lies beneath it.
func OIDInSubtree(root, oid string) bool {
	if !strings.HasPrefix(oid, root) {
		return false
	}
	return len(oid) == len(root) || oid[len(root)] == '.'
}
