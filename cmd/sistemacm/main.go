/*
main.go - Application entry point

PURPOSE:
  Starts the sistemacm command line. Every subcommand (including the HTTP
  server) builds its engine through app.New from the layered config.

EXAMPLES:
  # Run the API on an in-memory database
  sistemacm serve --db=":memory:"

  # Apply a payment with an edited value
  sistemacm pay 12 3 "R$ 240,00"

  # Reverse it
  sistemacm reverse 1f3a9c2e

SEE ALSO:
  - cli/root.go: Command tree
  - config/config.go: Configuration layers
*/
package main

import "github.com/sistemacm/ledger-engine/cli"

func main() {
	cli.Execute()
}
