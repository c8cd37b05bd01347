// services/hal/internal/util/util.go
package util

func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
