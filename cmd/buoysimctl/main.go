// buoysimctl is the operator CLI for running and validating buoysim
// simulations from the command line.
package main

import "github.com/kelpwave/buoysim/cmd/buoysimctl/commands"

func main() {
	commands.Execute()
}
