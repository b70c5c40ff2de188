package common

import "github.com/mw-chain/polkadot-sdk/pkg/readiness"

const (
	ReadinessDatabaseOpen     readiness.Component = "databaseOpen"
	ReadinessChannelsLoaded   readiness.Component = "channelsLoaded"
	ReadinessForwarderRunning readiness.Component = "forwarderRunning"
)
