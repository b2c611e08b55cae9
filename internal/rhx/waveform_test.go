package rhx

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"testing"
	"time"
)

// waveformBlock encodes one data block: magic word, then framesPerBlock
// frames of int32 sample index plus one uint16 per channel.
func waveformBlock(startIdx int32, channelValues []uint16) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, waveformMagic)
	for f := 0; f < framesPerBlock; f++ {
		binary.Write(&buf, binary.LittleEndian, startIdx+int32(f))
		for _, v := range channelValues {
			binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	return buf.Bytes()
}

func startWaveformServer(t *testing.T, payload []byte) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write(payload)
		// Keep the connection open; the client stops once it has enough.
		time.Sleep(2 * time.Second)
	}()
	return ln.Addr().String()
}

func TestWaveformReadEpoch(t *testing.T) {
	channels := []string{"a-042", "a-007"}

	// Leading garbage exercises magic-word resynchronization. Channel 0
	// sits 1000 counts above the zero offset, channel 1 at the offset.
	var payload bytes.Buffer
	payload.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	payload.Write(waveformBlock(0, []uint16{sampleOffset + 1000, sampleOffset}))
	payload.Write(waveformBlock(framesPerBlock, []uint16{sampleOffset + 1000, sampleOffset}))

	addr := startWaveformServer(t, payload.Bytes())
	client, err := DialWaveform(addr, channels, 1000, time.Second)
	if err != nil {
		t.Fatalf("DialWaveform failed: %v", err)
	}
	defer client.Close()

	// 200 ms at 1 kHz needs 200 samples; two blocks carry 256.
	epoch, err := client.ReadEpoch(context.Background(), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadEpoch failed: %v", err)
	}

	if len(epoch.Channels) != 2 || epoch.Channels[0] != "a-042" {
		t.Fatalf("Unexpected channel layout: %v", epoch.Channels)
	}
	if got := len(epoch.Samples[0]); got != 200 {
		t.Fatalf("Expected 200 samples, got %d", got)
	}
	if epoch.SampleRateHz != 1000 {
		t.Errorf("Expected sample rate 1000 Hz, got %g", epoch.SampleRateHz)
	}

	// 1000 counts at 0.195 µV/bit.
	if got := epoch.Samples[0][0]; math.Abs(got-195.0) > 1e-9 {
		t.Errorf("Expected 195 µV on channel 0, got %g", got)
	}
	if got := epoch.Samples[1][0]; got != 0 {
		t.Errorf("Expected 0 µV on channel 1, got %g", got)
	}
}

func TestWaveformReadEpochTimeout(t *testing.T) {
	// A server that accepts but never sends data.
	addr := startWaveformServer(t, nil)
	client, err := DialWaveform(addr, []string{"a-042"}, 1000, time.Second)
	if err != nil {
		t.Fatalf("DialWaveform failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.ReadEpoch(ctx, 100*time.Millisecond)
	if err == nil {
		t.Fatal("ReadEpoch against a silent server should fail")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stalled stream should surface as DeadlineExceeded, got %v", err)
	}
}

func TestWaveformEnableStreaming(t *testing.T) {
	srv := startFakeCommandServer(t)
	cmd, err := DialCommand(srv.addr(), time.Second)
	if err != nil {
		t.Fatalf("DialCommand failed: %v", err)
	}
	defer cmd.Close()

	addr := startWaveformServer(t, nil)
	client, err := DialWaveform(addr, []string{"a-042", "a-007"}, 1000, time.Second)
	if err != nil {
		t.Fatalf("DialWaveform failed: %v", err)
	}
	defer client.Close()

	if err := client.EnableStreaming(context.Background(), cmd); err != nil {
		t.Fatalf("EnableStreaming failed: %v", err)
	}

	want := []string{
		"execute clearalldataoutputs",
		"set a-042.tcpdataoutputenabledhigh true",
		"set a-007.tcpdataoutputenabledhigh true",
	}
	got := srv.received()
	if len(got) != len(want) {
		t.Fatalf("Expected %d commands, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Command %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestDialWaveformValidation(t *testing.T) {
	if _, err := DialWaveform("127.0.0.1:1", nil, 1000, time.Second); err == nil {
		t.Error("Empty channel list should be rejected")
	}
	if _, err := DialWaveform("127.0.0.1:1", []string{"a-000"}, 0, time.Second); err == nil {
		t.Error("Zero sample rate should be rejected")
	}
}
