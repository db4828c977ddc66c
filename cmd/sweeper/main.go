// Sweeper deletes Azure resource groups whose expiration tag has passed.
package main

func main() {
	Execute()
}
