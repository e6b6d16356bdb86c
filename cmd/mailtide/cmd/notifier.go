package cmd

import "fmt"

// cliNotifier prints sync outcomes to stdout for interactive commands.
type cliNotifier struct{}

func (cliNotifier) Info(email, message string) {
	fmt.Printf("%s: %s\n", email, message)
}

func (cliNotifier) Error(email, message string) {
	fmt.Printf("%s: ERROR: %s\n", email, message)
}
