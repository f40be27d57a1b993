package imaging

// Reflect101 maps i into [0, n) by mirroring around the edge pixels without
// repeating them (gfedcb|abcdefgh|gfedcba), as OpenCV's BORDER_REFLECT_101.
func Reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
