//go:build race

package hashers

func init() { race = true }
