// goschcctl is the CLI client for the goschcd admin HTTP/JSON API.
package main

import "github.com/dantte-lp/goschc/cmd/goschcctl/commands"

func main() {
	commands.Execute()
}
