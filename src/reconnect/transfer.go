package reconnect

import (
	"fmt"

	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/roster"
	"github.com/mosaicnetworks/murmur/src/state"
)

type stateHeader struct {
	Round      uint64
	Hash       []byte
	Signatures map[roster.NodeID]string
	Size       int
}

type stateChunk struct {
	Data []byte
}

type stateAck struct {
	Valid bool
}

// teach sends s to the learner: a header, then the data in chunks. It waits
// for the learner's verdict.
func teach(conn *gossip.Connection, s *state.SignedState, chunkSize int) error {
	hdr := stateHeader{
		Round:      s.Round,
		Hash:       s.Hash,
		Signatures: s.Signatures,
		Size:       len(s.Data),
	}
	if err := conn.Send(&hdr); err != nil {
		return err
	}

	for offset := 0; offset < len(s.Data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(s.Data) {
			end = len(s.Data)
		}
		if err := conn.Send(&stateChunk{Data: s.Data[offset:end]}); err != nil {
			return err
		}
	}

	var ack stateAck
	if err := conn.Receive(&ack); err != nil {
		return err
	}
	if !ack.Valid {
		return fmt.Errorf("learner %d rejected state of round %d", conn.Other(), s.Round)
	}
	return nil
}

// learn receives a state sent by teach. It does not validate it.
func learn(conn *gossip.Connection, maxSize int) (*state.SignedState, error) {
	var hdr stateHeader
	if err := conn.Receive(&hdr); err != nil {
		return nil, err
	}
	if hdr.Size < 0 || (maxSize > 0 && hdr.Size > maxSize) {
		return nil, fmt.Errorf("%w: state of %d bytes", gossip.ErrProtocolViolation, hdr.Size)
	}

	data := make([]byte, 0, hdr.Size)
	for len(data) < hdr.Size {
		var chunk stateChunk
		if err := conn.Receive(&chunk); err != nil {
			return nil, err
		}
		if len(chunk.Data) == 0 || len(data)+len(chunk.Data) > hdr.Size {
			return nil, fmt.Errorf("%w: bad state chunk", gossip.ErrProtocolViolation)
		}
		data = append(data, chunk.Data...)
	}

	return &state.SignedState{
		Round:      hdr.Round,
		Hash:       hdr.Hash,
		Data:       data,
		Signatures: hdr.Signatures,
	}, nil
}
