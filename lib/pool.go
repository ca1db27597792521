package lib

import (
	"fmt"
	"log"
	"sync"

	rp "github.com/Clouded-Sabre/ringpool/lib"
)

var (
	emptySlice []byte
	// Pool holds the payload chunks shared by all connections.
	Pool     *rp.RingPool
	poolOnce sync.Once
)

func setEmptySlice(length int) {
	emptySlice = make([]byte, length)
}

// initPayloadPool prepares the ring buffer pool backing segment payloads.
// Safe to call more than once; only the first call takes effect.
func initPayloadPool(poolSize int, debug bool) {
	poolOnce.Do(func() {
		if poolSize <= 0 {
			poolSize = DefaultPayloadPoolSize
		}
		rp.Debug = debug
		Pool = rp.NewRingPool("RDT: ", poolSize, NewPayload, MaxDataSize)
		Pool.Debug = debug
	})
}

// Payload represents a segment payload byte slice.
type Payload struct {
	payloadBytes []byte
	length       int
}

// NewPayload creates a payload chunk for the ring pool. The single calling
// parameter is the chunk buffer length.
func NewPayload(params ...interface{}) rp.DataInterface {
	if len(params) != 1 {
		log.Println("NewPayload: Invalid number of calling parameters. Should be only one: bufferLength")
		return nil
	}

	bufferLength, ok := params[0].(int)
	if !ok {
		log.Println("NewPayload: Invalid data type of bufferLength. Should be of type int")
		return nil
	}

	if len(emptySlice) == 0 { // initialize it
		setEmptySlice(bufferLength)
	}

	return &Payload{
		payloadBytes: make([]byte, bufferLength),
	}
}

// Reset resets the content of the payload
func (p *Payload) Reset() {
	copy(p.payloadBytes, emptySlice)
	p.length = 0
}

// PrintContent prints the content of the payload
func (p *Payload) PrintContent() {
	fmt.Println("Content:", string(p.payloadBytes[:p.length]))
}

func (p *Payload) Copy(src []byte) error {
	if len(src) > len(p.payloadBytes) {
		return fmt.Errorf("Payload Copy: Source byte slice(%d) is longer than bufferLength(%d)", len(src), len(p.payloadBytes))
	}
	if len(src) == 0 {
		return fmt.Errorf("Payload Copy: Source byte slice is empty")
	}
	copy(p.payloadBytes, src)
	p.length = len(src)
	return nil
}

func (p *Payload) GetSlice() []byte {
	return p.payloadBytes[:p.length]
}
