package information

// before is the dispatch precedence of two events. It is not a strict weak
// ordering: the result of sorting depends on the merge order below, which is
// kept stable on purpose.
func before(a, b *Event) bool {
	ca, cb := &categories[a.Kind], &categories[b.Kind]
	if !a.Infill && b.Infill {
		return true
	}
	if ca.transition && !cb.transition {
		return true
	}
	if ca.early && !cb.early {
		return true
	}
	if cb.last && !ca.last {
		return true
	}
	return false
}

// sortEvents orders event indices with a bottom-up merge using binary
// counter bins. Ties keep arrival order; an element of the right run only
// moves ahead of the left run when it is strictly before it.
func sortEvents(b *Batch, order []int) []int {
	less := func(i, j int) bool { return before(&b.Events[i], &b.Events[j]) }

	var bins [][]int
	for _, idx := range order {
		carry := []int{idx}
		i := 0
		for ; i < len(bins) && len(bins[i]) > 0; i++ {
			carry = merge(bins[i], carry, less)
			bins[i] = nil
		}
		if i == len(bins) {
			bins = append(bins, carry)
		} else {
			bins[i] = carry
		}
	}

	var out []int
	for _, bin := range bins {
		out = merge(bin, out, less)
	}
	return out
}

func merge(left, right []int, less func(i, j int) bool) []int {
	out := make([]int, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		if less(right[j], left[i]) {
			out = append(out, right[j])
			j++
		} else {
			out = append(out, left[i])
			i++
		}
	}
	out = append(out, left[i:]...)
	return append(out, right[j:]...)
}
