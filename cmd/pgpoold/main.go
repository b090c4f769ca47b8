package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pgpoold <command> [options]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Run the admin HTTP server over a configured connection pool")
		fmt.Println("  bench   Drive concurrent acquire/release load through a pool")
		fmt.Println()
		fmt.Println("Use 'pgpoold <command> -h' for more information about a command.")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serveMain()
	case "bench":
		benchMain()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
