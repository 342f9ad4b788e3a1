package state

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is the payload of a resource: an owner tag, a balance, and an opaque
// data blob the VM interprets. Values compare by content.
type State struct {
	Owner   []byte `json:"owner,omitempty"`
	Balance uint64 `json:"balance"`
	Data    []byte `json:"data,omitempty"`
}

// NewState returns an empty state: no owner, zero balance, no data.
func NewState() *State {
	return &State{}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{
		Owner:   append([]byte(nil), s.Owner...),
		Balance: s.Balance,
		Data:    append([]byte(nil), s.Data...),
	}
}

// Equal reports deep equality.
func (s *State) Equal(other *State) bool {
	return bytes.Equal(s.Owner, other.Owner) &&
		s.Balance == other.Balance &&
		bytes.Equal(s.Data, other.Data)
}

// MarshalBinary serializes the state for the data space.
func (s *State) MarshalBinary() []byte {
	data, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("state: failed to serialize: %v", err))
	}
	return data
}

// UnmarshalState deserializes a data-space value.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to deserialize state: %w", err)
	}
	return &s, nil
}
