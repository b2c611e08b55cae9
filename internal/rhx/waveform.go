package rhx

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"ticontrol/internal/mi"
)

// Waveform stream framing: each data block starts with a magic word and
// carries framesPerBlock frames, each holding one int32 sample index
// followed by one uint16 sample per enabled channel. Samples are offset
// binary with 0.195 µV per bit.
const (
	waveformMagic  uint32 = 0x2ef07a08
	framesPerBlock        = 128

	microvoltsPerBit = 0.195
	sampleOffset     = 32768
)

// WaveformClient assembles recording epochs from the RHX waveform output
// server. It implements the controller's DataSource contract.
type WaveformClient struct {
	addr         string
	channels     []string
	sampleRateHz float64
	timeout      time.Duration

	conn   net.Conn
	reader *bufio.Reader
}

// DialWaveform connects to the waveform server (e.g. "127.0.0.1:5001") for
// the given enabled channels, in stream order.
func DialWaveform(addr string, channels []string, sampleRateHz float64, timeout time.Duration) (*WaveformClient, error) {
	if len(channels) == 0 {
		return nil, errors.New("no channels to stream")
	}
	if sampleRateHz <= 0 {
		return nil, errors.Errorf("invalid sample rate %g Hz", sampleRateHz)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to RHX waveform server at %s", addr)
	}
	return &WaveformClient{
		addr:         addr,
		channels:     channels,
		sampleRateHz: sampleRateHz,
		timeout:      timeout,
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, 1<<16),
	}, nil
}

// EnableStreaming configures the command server to publish the client's
// channels on the waveform output: clear all outputs, then enable the
// wideband output of each channel.
func (w *WaveformClient) EnableStreaming(ctx context.Context, cmd *CommandClient) error {
	if err := cmd.Execute(ctx, "clearalldataoutputs"); err != nil {
		return err
	}
	for _, ch := range w.channels {
		if err := cmd.Set(ctx, ch, "tcpdataoutputenabledhigh", "true"); err != nil {
			return err
		}
	}
	return nil
}

// ReadEpoch reads one epoch of the requested duration, blocking until enough
// blocks arrived or the context deadline expired. Timeouts surface as
// context.DeadlineExceeded so callers can distinguish them from stream
// corruption.
func (w *WaveformClient) ReadEpoch(ctx context.Context, d time.Duration) (*mi.Epoch, error) {
	if w.conn == nil {
		return nil, errors.New("waveform client is closed")
	}

	need := int(d.Seconds() * w.sampleRateHz)
	if need <= 0 {
		return nil, errors.Errorf("epoch duration %s too short at %g Hz", d, w.sampleRateHz)
	}

	deadline := time.Now().Add(w.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok {
		deadline = ctxDeadline
	}
	if err := w.conn.SetReadDeadline(deadline); err != nil {
		return nil, errors.WithStack(err)
	}

	samples := make([][]float64, len(w.channels))
	for i := range samples {
		samples[i] = make([]float64, 0, need)
	}
	start := time.Now()

	for len(samples[0]) < need {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.readBlock(samples); err != nil {
			if nerr, ok := errors.Cause(err).(net.Error); ok && nerr.Timeout() {
				return nil, errors.Wrap(context.DeadlineExceeded, "waveform stream stalled")
			}
			return nil, err
		}
	}

	epoch := &mi.Epoch{
		Start:        start,
		SampleRateHz: w.sampleRateHz,
		Channels:     append([]string(nil), w.channels...),
		Samples:      make([][]float64, len(samples)),
	}
	for i := range samples {
		epoch.Samples[i] = samples[i][:need]
	}
	return epoch, nil
}

// Close terminates the stream connection.
func (w *WaveformClient) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return errors.WithStack(err)
}

// readBlock consumes one data block, resynchronizing on the magic word
// first so a mid-block attach still locks onto frame boundaries.
func (w *WaveformClient) readBlock(samples [][]float64) error {
	if err := w.syncMagic(); err != nil {
		return err
	}

	frame := make([]byte, 4+2*len(w.channels))
	for f := 0; f < framesPerBlock; f++ {
		if _, err := io.ReadFull(w.reader, frame); err != nil {
			return errors.Wrap(err, "read waveform frame")
		}
		// frame[0:4] is the sample index; the stream is contiguous while
		// running, so it is not rechecked per frame.
		for c := range w.channels {
			raw := binary.LittleEndian.Uint16(frame[4+2*c:])
			samples[c] = append(samples[c], (float64(raw)-sampleOffset)*microvoltsPerBit)
		}
	}
	return nil
}

// syncMagic scans the stream until the block magic word is found.
func (w *WaveformClient) syncMagic() error {
	var window uint32
	valid := 0
	for {
		b, err := w.reader.ReadByte()
		if err != nil {
			return errors.Wrap(err, "scan for block magic")
		}
		window = window>>8 | uint32(b)<<24
		if valid < 3 {
			valid++
			continue
		}
		if window == waveformMagic {
			return nil
		}
	}
}
