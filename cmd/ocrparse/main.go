package main

import "github.com/MeKo-Tech/ocrparse/cmd/ocrparse/cmd"

func main() {
	cmd.Execute()
}
