package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eldtechnologies/acp/internal/api/middleware"
	"github.com/eldtechnologies/acp/internal/crypto"
)

func main() {
	privKeyB64 := flag.String("key", "", "Base64-encoded Ed25519 private seed or key")
	bodyFile := flag.String("body", "", "File containing request body (or use stdin)")
	flag.Parse()

	if *privKeyB64 == "" {
		fmt.Fprintln(os.Stderr, "Usage: sign -key <private-key-base64> [-body <file>]")
		fmt.Fprintln(os.Stderr, "  Reads body from stdin if -body not specified")
		os.Exit(1)
	}

	id, err := crypto.IdentityFromSeed(*privKeyB64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid private key: %v\n", err)
		os.Exit(1)
	}

	// Read body
	var body []byte
	if *bodyFile != "" {
		body, err = os.ReadFile(*bodyFile)
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		os.Exit(1)
	}

	nonce := crypto.NewNonce()
	timestamp := time.Now().UnixMilli()

	// Output headers
	fmt.Printf("%s: %s\n", middleware.HeaderIdentity, id.PublicKeyB64())
	fmt.Printf("%s: %s\n", middleware.HeaderNonce, nonce)
	fmt.Printf("%s: %d\n", middleware.HeaderTimestamp, timestamp)
	fmt.Printf("%s: %s\n", middleware.HeaderSignature, id.SignRequest(body, nonce, timestamp))
}
