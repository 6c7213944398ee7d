package signal

import (
	"encoding/json"
	"fmt"
)

// decodeReceive parses one event payload into a Receive. The daemon emits
// either a bare receive object or a JSON-RPC notification wrapping it under
// "params"; both forms are accepted.
func decodeReceive(data []byte) (*Receive, error) {
	var frame struct {
		Receive
		Params *Receive `json:"params"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decode receive frame: %w", err)
	}

	rcv := frame.Receive
	if rcv.Envelope == nil && frame.Params != nil {
		rcv.Envelope = frame.Params.Envelope
		if rcv.Account == "" {
			rcv.Account = frame.Params.Account
		}
		if rcv.Exception == nil {
			rcv.Exception = frame.Params.Exception
		}
	}
	return &rcv, nil
}
