package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mw-chain/polkadot-sdk/pkg/envelope"
	"github.com/mw-chain/polkadot-sdk/pkg/verifier"
	"github.com/spf13/cobra"
)

type decodedEnvelope struct {
	Gateway   string            `json:"gateway"`
	ChannelID string            `json:"channelId"`
	Nonce     uint64            `json:"nonce"`
	MessageID string            `json:"messageId"`
	Command   *envelope.Command `json:"command"`
	TagName   string            `json:"tagName"`
}

var decodeLogCmd = &cobra.Command{
	Use:   "decode-log [FILE]",
	Short: "Decode a JSON encoded gateway log read from FILE or stdin",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				log.Fatalf("failed to open file: %v", err)
			}
			defer f.Close()
			r = f
		}

		var l envelope.EventLog
		if err := json.NewDecoder(r).Decode(&l); err != nil {
			log.Fatalf("failed to parse log: %v", err)
		}

		env, err := envelope.Decode(&l)
		if err != nil {
			log.Fatal(err)
		}

		out, err := json.MarshalIndent(&decodedEnvelope{
			Gateway:   env.Gateway.Hex(),
			ChannelID: env.ChannelID.String(),
			Nonce:     env.Nonce,
			MessageID: env.MessageID.Hex(),
			Command:   &env.Command,
			TagName:   env.Command.Tag.String(),
		}, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(string(out))
	},
}

var decodeAttestationCmd = &cobra.Command{
	Use:   "decode-attestation [DATA]",
	Short: "Decode a hex-encoded execution proof",
	Run: func(cmd *cobra.Command, args []string) {
		for _, arg := range args {
			b, err := hexutil.Decode(arg)
			if err != nil {
				log.Fatal(err)
			}

			a, err := verifier.UnmarshalAttestation(b)
			if err != nil {
				log.Fatal(err)
			}

			fmt.Printf("BlockHash: %s\nBlockNumber: %d\nReceiptsRoot: %s\nSetIndex: %d\nSigningDigest: %s\n",
				a.BlockHash.Hex(), a.BlockNumber, a.ReceiptsRoot.Hex(), a.SetIndex, a.SigningDigest().Hex())
			for _, sig := range a.Signatures {
				fmt.Printf("Signature[%d]: %s\n", sig.Index, hexutil.Encode(sig.Signature[:]))
			}
		}
	},
}
