// Package channel holds the set of channels the inbound queue accepts messages for. Each channel binds a channel id
// to exactly one foreign gateway contract and one local fee account.
package channel

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	localCommon "github.com/mw-chain/polkadot-sdk/pkg/common"
)

var (
	ErrChannelNotFound  = errors.New("channel not registered")
	ErrDuplicateChannel = errors.New("channel already registered")
)

type Channel struct {
	ID         localCommon.ChannelID
	Gateway    common.Address
	FeeAccount localCommon.AccountID
}

func (c Channel) String() string {
	return fmt.Sprintf("Channel: {ID=%s Gateway=%s FeeAccount=%s}", c.ID, c.Gateway.Hex(), c.FeeAccount)
}

// Registry is safe for concurrent use. Lookups never observe a partially registered channel.
type Registry struct {
	mu       sync.RWMutex
	channels map[localCommon.ChannelID]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[localCommon.ChannelID]Channel)}
}

// Register adds a channel. Registering the same id twice is an error; deregister first to rotate a gateway.
func (r *Registry) Register(c Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateChannel, c.ID)
	}
	r.channels[c.ID] = c
	return nil
}

// Deregister removes a channel. It returns ErrChannelNotFound if the channel is unknown.
func (r *Registry) Deregister(id localCommon.ChannelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[id]; !exists {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	delete(r.channels, id)
	return nil
}

// Lookup returns a copy of the channel registered under id.
func (r *Registry) Lookup(id localCommon.ChannelID) (*Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, exists := r.channels[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return &c, nil
}

// All returns the registered channels ordered by id.
func (r *Registry) All() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
