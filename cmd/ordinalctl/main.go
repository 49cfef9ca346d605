// Command ordinalctl is the admin CLI of the ordinal service. It reads the
// same environment configuration as the server.
package main

func main() {
	Execute()
}
