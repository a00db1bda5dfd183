package sharpen

// blurChain runs passes blur steps through a two-buffer ping-pong pair:
// original->pair[0], then pair[cur]->pair[cur^1] for every further pass. It
// returns the buffer holding the final blur. With three passes that is
// pair[0], matching original->A, A->B, B->A.
func blurChain[T any](original T, pair [2]T, passes int, blur func(pass int, dst, src T) error) (T, error) {
	cur := 0
	if err := blur(1, pair[cur], original); err != nil {
		var zero T
		return zero, err
	}
	for pass := 2; pass <= passes; pass++ {
		if err := blur(pass, pair[cur^1], pair[cur]); err != nil {
			var zero T
			return zero, err
		}
		cur ^= 1
	}
	return pair[cur], nil
}
