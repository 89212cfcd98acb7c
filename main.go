package main

import "github/chapool/automated-fund-transfer/cmd"

func main() {
	cmd.Execute()
}
