package main

import "credit-ledger/internal/cli"

func main() {
	cli.Execute()
}
