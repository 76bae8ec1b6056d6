// Command appmap validates configurations and inspects recordings.
package main

import "github.com/ikuo/appmap/cmd/appmap/cmd"

func main() {
	cmd.Execute()
}
