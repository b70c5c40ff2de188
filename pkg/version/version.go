package version

// Release version injected by the linker: -ldflags "-X github.com/mw-chain/polkadot-sdk/pkg/version.version=v1.2.3"
var version = "development"

func Version() string {
	if version == "" {
		panic("binary compiled with empty version")
	}
	return version
}
