// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package streaming reassembles and writes sentinel-delimited text streams.
// A stream carries a description, the ▲ sentinel, then extracted text.
package streaming

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Sentinel separates the description from the extracted text
const Sentinel = "▲"

const readChunkSize = 4096

// Snapshot is the parsed state of the stream so far
type Snapshot struct {
	Description   string `json:"description"`
	ExtractedText string `json:"extractedText"`
	HasSentinel   bool   `json:"-"`
}

// Split parses accumulated stream text. Text after a second sentinel is
// ignored.
func Split(accumulated string) Snapshot {
	parts := strings.Split(accumulated, Sentinel)
	snap := Snapshot{Description: parts[0]}
	if len(parts) > 1 {
		snap.HasSentinel = true
		snap.ExtractedText = parts[1]
	}
	return snap
}

// Reassembler accumulates stream chunks in arrival order and re-parses the
// whole accumulator after each one. Multi-byte characters split across
// chunks are held back until complete. It is not safe for concurrent use.
type Reassembler struct {
	acc      strings.Builder
	pending  []byte
	onUpdate func(Snapshot)
}

// NewReassembler creates a reassembler. onUpdate, if non-nil, receives a
// snapshot after every chunk.
func NewReassembler(onUpdate func(Snapshot)) *Reassembler {
	return &Reassembler{onUpdate: onUpdate}
}

// Write appends one chunk. It implements io.Writer.
func (r *Reassembler) Write(p []byte) (int, error) {
	data := append(r.pending, p...)
	cut := completePrefix(data)
	r.acc.Write(data[:cut])
	r.pending = append([]byte(nil), data[cut:]...)

	if r.onUpdate != nil {
		r.onUpdate(r.Snapshot())
	}
	return len(p), nil
}

// ReadFrom consumes reader until EOF, applying each read as one chunk.
func (r *Reassembler) ReadFrom(reader io.Reader) (int64, error) {
	buf := make([]byte, readChunkSize)
	var total int64
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			total += int64(n)
			_, _ = r.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			r.Close()
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Close flushes any incomplete trailing bytes as replacement characters.
func (r *Reassembler) Close() {
	if len(r.pending) == 0 {
		return
	}
	r.acc.WriteString(strings.ToValidUTF8(string(r.pending), string(utf8.RuneError)))
	r.pending = nil
	if r.onUpdate != nil {
		r.onUpdate(r.Snapshot())
	}
}

// Snapshot parses everything received so far
func (r *Reassembler) Snapshot() Snapshot {
	return Split(r.acc.String())
}

// String returns the decoded text received so far
func (r *Reassembler) String() string {
	return r.acc.String()
}

// Reassemble reads a whole stream and returns its final snapshot.
func Reassemble(reader io.Reader, onUpdate func(Snapshot)) (Snapshot, error) {
	r := NewReassembler(onUpdate)
	if _, err := r.ReadFrom(reader); err != nil {
		return r.Snapshot(), err
	}
	return r.Snapshot(), nil
}

// completePrefix returns the length of data up to the last complete rune.
// Invalid bytes count as complete so they never stall the stream.
func completePrefix(data []byte) int {
	// A UTF-8 sequence is at most 4 bytes; only the tail can be incomplete.
	for back := 1; back <= utf8.UTFMax && back <= len(data); back++ {
		i := len(data) - back
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return len(data)
		}
		return i
	}
	return len(data)
}
