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

package streaming

import (
	"io"
	"strings"
)

type flusher interface {
	Flush()
}

// Writer streams text to a client, flushing after every write
type Writer struct {
	w             io.Writer
	flusher       flusher
	sentinelCount int
	written       int64
}

// NewWriter wraps w. If w can flush (http.Flusher, gin.ResponseWriter) it is
// flushed after each write.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Write passes p through unchanged and flushes. It implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += int64(n)
	w.sentinelCount += strings.Count(string(p[:n]), Sentinel)
	if err != nil {
		return n, err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return n, nil
}

// WriteString writes s and flushes
func (w *Writer) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// WriteDescription writes description text. Any sentinel inside it is
// dropped so the stream keeps a single separator.
func (w *Writer) WriteDescription(text string) error {
	_, err := w.WriteString(strings.ReplaceAll(text, Sentinel, ""))
	return err
}

// WriteSentinel writes the separator unless one has already been written.
func (w *Writer) WriteSentinel() error {
	if w.sentinelCount > 0 {
		return nil
	}
	_, err := w.WriteString(Sentinel)
	return err
}

// WriteExtracted writes extracted text, emitting the sentinel first if needed.
func (w *Writer) WriteExtracted(text string) error {
	if err := w.WriteSentinel(); err != nil {
		return err
	}
	_, err := w.WriteString(text)
	return err
}

// BytesWritten returns the number of bytes written so far
func (w *Writer) BytesWritten() int64 {
	return w.written
}
