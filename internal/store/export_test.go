package store

func init() {
	// Keep sealing fast under test.
	scryptParams = [3]int{1 << 10, 8, 1}
}
