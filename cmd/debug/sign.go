package debug

import (
	"fmt"
	"log"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mw-chain/polkadot-sdk/pkg/common"
	"github.com/mw-chain/polkadot-sdk/pkg/verifier"
	"github.com/spf13/cobra"
)

var (
	signKeyFile      *string
	signUnsafeKey    *bool
	signAttestation  *string
	signBlockHash    *string
	signBlockNumber  *uint64
	signReceiptsRoot *string
	signSetIndex     *uint32
	signerIndex      *uint8
)

func init() {
	signKeyFile = signAttestationCmd.Flags().String("key", "", "Armored attester key file")
	signUnsafeKey = signAttestationCmd.Flags().Bool("unsafeDevMode", false, "Accept deterministic devnet keys")
	signAttestation = signAttestationCmd.Flags().String("attestation", "", "Hex-encoded attestation to add a signature to (optional)")
	signBlockHash = signAttestationCmd.Flags().String("blockHash", "", "Hash of the attested block")
	signBlockNumber = signAttestationCmd.Flags().Uint64("blockNumber", 0, "Number of the attested block")
	signReceiptsRoot = signAttestationCmd.Flags().String("receiptsRoot", "", "Receipts root of the attested block")
	signSetIndex = signAttestationCmd.Flags().Uint32("setIndex", 0, "Index of the attester set")
	signerIndex = signAttestationCmd.Flags().Uint8("signerIndex", 0, "Position of the key in the attester set")
}

var signAttestationCmd = &cobra.Command{
	Use:   "sign-attestation",
	Short: "Sign an execution header attestation and print it hex-encoded",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if *signKeyFile == "" {
			log.Fatal("Please specify --key")
		}
		key, err := common.LoadAttesterKey(*signKeyFile, *signUnsafeKey)
		if err != nil {
			log.Fatalf("failed to load key: %v", err)
		}

		var a *verifier.Attestation
		if *signAttestation != "" {
			b, err := hexutil.Decode(*signAttestation)
			if err != nil {
				log.Fatalf("invalid attestation: %v", err)
			}
			if a, err = verifier.UnmarshalAttestation(b); err != nil {
				log.Fatal(err)
			}
		} else {
			if *signBlockHash == "" || *signReceiptsRoot == "" {
				log.Fatal("Please specify --blockHash and --receiptsRoot")
			}
			a = &verifier.Attestation{
				BlockHash:    ethCommon.HexToHash(*signBlockHash),
				BlockNumber:  *signBlockNumber,
				ReceiptsRoot: ethCommon.HexToHash(*signReceiptsRoot),
				SetIndex:     *signSetIndex,
			}
		}

		for _, sig := range a.Signatures {
			if sig.Index == *signerIndex {
				log.Fatalf("attestation is already signed at index %d", *signerIndex)
			}
		}
		if err := a.AddSignature(key, *signerIndex); err != nil {
			log.Fatal(err)
		}
		sort.Slice(a.Signatures, func(i, j int) bool {
			return a.Signatures[i].Index < a.Signatures[j].Index
		})

		b, err := a.Marshal()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(hexutil.Encode(b))
	},
}
