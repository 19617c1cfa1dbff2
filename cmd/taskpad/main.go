// Command taskpad manages a durable local task list.
package main

import "github.com/mesh-intelligence/taskpad/internal/cli"

func main() {
	cli.Execute()
}
