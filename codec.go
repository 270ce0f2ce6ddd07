// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import (
	"bytes"
	"encoding/gob"
)

// encodeControlMessage serializes msg for transmission on the control
// lane. Framing (delimiting one message from the next) is the transport's
// job; this only produces the payload bytes.
func encodeControlMessage(msg ControlMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeControlMessage is the inverse of [encodeControlMessage].
func decodeControlMessage(payload []byte) (ControlMessage, error) {
	var msg ControlMessage
	err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg)
	return msg, err
}
