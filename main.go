package main

import "github.com/Krish-Depani/session-admission/cmd"

func main() {
	cmd.Execute()
}
