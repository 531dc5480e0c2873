// Public domain.

package main

import "github.com/soniakeys/saukf/internal/odprog"

func main() {
	odprog.Main()
}
