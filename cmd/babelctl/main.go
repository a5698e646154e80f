// babelctl is the operator CLI for babeld, talking to its Unix domain
// management socket.
package main

import "github.com/babeldcore/babeld/cmd/babelctl/commands"

func main() {
	commands.Execute()
}
