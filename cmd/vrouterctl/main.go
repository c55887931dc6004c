// Command vrouterctl is the CLI client for vrouted: it sends control verbs
// (§4.3) to a running node over its native UDP control socket.
package main

import (
	"github.com/vrouted/vrouted/cmd/vrouterctl/commands"
)

func main() {
	commands.Execute()
}
