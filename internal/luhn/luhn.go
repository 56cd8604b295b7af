// Package luhn validates card-like digit runs with the Luhn checksum.
package luhn

// Valid reports whether s is a 13 to 19 digit number passing the Luhn
// checksum. Spaces and dashes between digits are ignored; any other
// character makes s invalid.
func Valid(s string) bool {
	digits := make([]int, 0, 19)
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, int(c-'0'))
		case c == ' ' || c == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	return checksum(digits)%10 == 0
}

func checksum(digits []int) int {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum
}
