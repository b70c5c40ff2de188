package inboundd

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"log"

	"github.com/mw-chain/polkadot-sdk/pkg/common"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var keyDescription *string

func init() {
	keyDescription = KeygenCmd.Flags().String("desc", "", "Human-readable key description (optional)")
}

var KeygenCmd = &cobra.Command{
	Use:   "keygen [KEYFILE]",
	Short: "Create an attester key at the specified path",
	Run:   runKeygen,
	Args:  cobra.ExactArgs(1),
}

var KeyprintCmd = &cobra.Command{
	Use:   "keyprint [KEYFILE]",
	Short: "Print the address of an armored attester key",
	Run:   runKeyprint,
	Args:  cobra.ExactArgs(1),
}

func runKeygen(cmd *cobra.Command, args []string) {
	log.Print("Creating new key at ", args[0])

	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	if err := common.WriteArmoredKey(key, *keyDescription, args[0], common.AttesterKeyArmoredBlock, false); err != nil {
		log.Fatalf("failed to write key: %v", err)
	}

	fmt.Println(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
}

func runKeyprint(cmd *cobra.Command, args []string) {
	key, err := common.LoadAttesterKey(args[0], true)
	if err != nil {
		log.Fatalf("failed to load key: %v", err)
	}
	fmt.Println(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
}
