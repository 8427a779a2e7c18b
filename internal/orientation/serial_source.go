// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// SerialOptions selects the port a head sensor streams quaternions on.
type SerialOptions struct {
	PortName string // /dev/ttyUSB0, /dev/serial0, ...
	BaudRate uint
}

// SerialSource reads "w,x,y,z[,quality]" lines from a serial-attached head
// sensor. Lines starting with '#' are treated as device chatter and skipped.
type SerialSource struct {
	name   string
	port   io.ReadCloser
	reader *bufio.Reader
	now    func() time.Time
}

// NewSerialSource opens the serial port and returns a Source reading from it.
func NewSerialSource(opts SerialOptions) (*SerialSource, error) {
	serialOpts := serial.OpenOptions{
		PortName:              opts.PortName,
		BaudRate:              opts.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("serial source: open %s: %w", opts.PortName, err)
	}

	return newReaderSource(opts.PortName, port, time.Now), nil
}

func newReaderSource(name string, r io.ReadCloser, now func() time.Time) *SerialSource {
	return &SerialSource{
		name:   name,
		port:   r,
		reader: bufio.NewReader(r),
		now:    now,
	}
}

// Next blocks until the next well-formed line arrives.
func (s *SerialSource) Next() (Sample, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return Sample{}, fmt.Errorf("serial source %s: read: %w", s.name, err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, perr := ParseSampleLine(line, s.now())
		if perr != nil {
			// partial lines are common right after the port opens
			continue
		}
		sample.Source = s.name
		return sample, nil
	}
}

// Close releases the serial port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}

// ParseSampleLine parses "w,x,y,z" or "w,x,y,z,quality". Quality defaults to 1.
// Accelerometer-only sensors send "A,ax,ay,az" in g; the tilt is turned into a
// quaternion with yaw 0 and the sample is marked half quality.
func ParseSampleLine(line string, ts time.Time) (Sample, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	accelOnly := strings.EqualFold(strings.TrimSpace(parts[0]), "A")
	if accelOnly {
		parts = parts[1:]
		if len(parts) != 3 {
			return Sample{}, fmt.Errorf("expected 3 accel fields, got %d: %q", len(parts), line)
		}
	} else if len(parts) != 4 && len(parts) != 5 {
		return Sample{}, fmt.Errorf("expected 4 or 5 fields, got %d: %q", len(parts), line)
	}

	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("field %d %q: %w", i, p, err)
		}
		vals[i] = v
	}

	if accelOnly {
		accel := Vector3{X: vals[0], Y: vals[1], Z: vals[2]}
		return Sample{
			Quaternion:   ComputeQuaternionFromAccel(accel.X, accel.Y, accel.Z),
			Acceleration: accel,
			Timestamp:    ts,
			Quality:      0.5,
		}, nil
	}

	quality := 1.0
	if len(vals) == 5 {
		quality = vals[4]
	}

	return Sample{
		Quaternion: Quaternion{W: vals[0], X: vals[1], Y: vals[2], Z: vals[3]},
		Timestamp:  ts,
		Quality:    quality,
	}, nil
}
