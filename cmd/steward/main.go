package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// Pick up ANTHROPIC_API_KEY and friends from a local .env, if present.
	_ = godotenv.Load()
	Execute()
}
