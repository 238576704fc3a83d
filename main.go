package main

import "github.com/gearshare/rental-payments/cmd"

func main() {
	cmd.Execute()
}
