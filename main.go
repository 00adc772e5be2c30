package main

import "github.com/yashasviy/bank-ledger-api/cmd"

func main() {
	cmd.Execute()
}
