// Command parley is the command-line host of the Parley answering machine.
package main

func main() {
	Execute()
}
