// Command syncwave streams or receives a LAN-synchronized audio broadcast.
package main

import "github.com/syncwave/syncwave/cmd/syncwave/cmd"

func main() {
	cmd.Execute()
}
