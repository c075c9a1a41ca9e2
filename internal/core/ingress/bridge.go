package ingress

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"

	"github.com/astra-cc/orchestrator/pkg/logger"

	"go.uber.org/zap"
)

// Upgrader upgrades the telephony bridge's HTTP connection to a
// gorilla/websocket binary stream, the concrete transport of spec.md §6's
// "framed binary stream" contract.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge reads framed RTP packets off one telephony bridge websocket
// connection and feeds them into a Ring, and writes outbound TTS audio back
// to the bridge.
type Bridge struct {
	conn *websocket.Conn
	ring *Ring
}

// NewBridge wraps an already-upgraded websocket connection.
func NewBridge(conn *websocket.Conn, ring *Ring) *Bridge {
	return &Bridge{conn: conn, ring: ring}
}

// Run reads frames until the bridge closes or readErr. Each binary message is
// one RTP packet (spec.md §4.2: "modeled as a pion/rtp packet, PCM16
// payload, 20 ms framing").
func (b *Bridge) Run() error {
	defer b.ring.Close()

	for {
		msgType, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Base().Warn("bridge websocket closed unexpectedly", zap.Error(err))
			}
			return ErrIngressClosed{}
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(data); err != nil {
			logger.Base().Warn("failed to unmarshal rtp packet from bridge", zap.Error(err))
			continue
		}

		if err := b.ring.WriteFrame(pkt); err != nil {
			return err
		}
	}
}

// WritePCM16 frames outbound PCM16 audio (from the Playback Controller, C11)
// as a sequence of RTP packets and writes them to the bridge, chunked to
// frameDuration.
func (b *Bridge) WritePCM16(pcm16 []byte, sampleRateHz int, frameDuration time.Duration) error {
	frameBytes := int(frameDuration.Seconds()*float64(sampleRateHz)) * bytesPerSample
	if frameBytes <= 0 {
		return fmt.Errorf("ingress: invalid frame size")
	}

	var seq uint16
	var ts uint32
	samplesPerFrame := uint32(frameBytes / bytesPerSample)

	for offset := 0; offset < len(pcm16); offset += frameBytes {
		end := offset + frameBytes
		if end > len(pcm16) {
			end = len(pcm16)
		}
		payload := pcm16[offset:end]

		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    96,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: payload,
		}
		raw, err := pkt.Marshal()
		if err != nil {
			return fmt.Errorf("ingress: marshal outbound rtp packet: %w", err)
		}
		if err := b.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			return fmt.Errorf("ingress: write to bridge: %w", err)
		}

		seq++
		ts += samplesPerFrame
	}
	return nil
}
