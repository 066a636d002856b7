// Package feed fans live events out to websocket subscribers.
//
// A Hub owns its subscriber set from a single Run loop; publishers and
// connection handlers only talk to it over channels. Subscribers that fall
// behind are dropped rather than allowed to stall the loop.
package feed

import "github.com/gorilla/websocket"

// Message is one websocket frame queued for every subscriber.
type Message struct {
	frameType int
	Data      []byte
}

// Text wraps an encoded JSON document.
func Text(data []byte) Message {
	return Message{frameType: websocket.TextMessage, Data: data}
}

// Binary wraps raw bytes such as a JPEG snapshot.
func Binary(data []byte) Message {
	return Message{frameType: websocket.BinaryMessage, Data: data}
}

// IsBinary reports whether m goes out as a binary frame.
func (m Message) IsBinary() bool {
	return m.frameType == websocket.BinaryMessage
}

func (m Message) wsType() int {
	if m.frameType == 0 {
		return websocket.TextMessage
	}
	return m.frameType
}
