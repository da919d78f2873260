// Command demosite starts the demo target site for exercising the bridge.
// Usage: go run ./cmd/demosite [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/hashi/internal/demosite"
)

func main() {
	cfg := demosite.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   Hashi Demo Site - Bridge Target")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("A deterministic login flow for trying out the")
	fmt.Println("bridge. A typical sequence against it:")
	fmt.Println()
	fmt.Println("  type_text #username  admin")
	fmt.Println("  type_text #password  hashi123")
	fmt.Println("  click     #submit")
	fmt.Println("  verify    #greeting  'Welcome back'")
	fmt.Println()

	site := demosite.NewDemoSite(cfg)
	if err := site.Start(); err != nil {
		log.Fatalf("Site error: %v", err)
	}
}
