package main

import (
	"fmt"
	"os"

	"github.com/eldtechnologies/acp/internal/crypto"
)

func main() {
	id, err := crypto.GenerateIdentity()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Identity (public key, base64): %s\n", id.PublicKeyB64())
	fmt.Printf("Private seed (base64):         %s\n", id.SeedB64())
}
