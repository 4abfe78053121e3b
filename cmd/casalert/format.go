package main

import "fmt"

// formatNumber formats an integer with thousand separators
func formatNumber(n int) string {
	if n < 0 {
		return fmt.Sprintf("-%s", formatNumber(-n))
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s,%03d", formatNumber(n/1000), n%1000)
}
