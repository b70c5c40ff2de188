package main

import "github.com/mw-chain/polkadot-sdk/cmd"

func main() {
	cmd.Execute()
}
