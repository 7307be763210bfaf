/*
 * STREAMCAP - Traffic Analysis Framework
 * Copyright (c) 2017-2020 Philipp Mieden <dreadl0ck [at] protonmail [dot] ch>
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

// Package capture is the external packet-source collaborator spec.md §6
// names at the core's boundary: it reads `.pcap` files and hands
// (bytes, len, timestamp_µs, link_type) records to the decode pipeline
// one at a time. It is the one place this module leans on gopacket —
// everything downstream of Next() is hand-built, per spec.md §1.
//
// Grounded on firestige-Otus's internal/source/file.FileSource for the
// open/read/close lifecycle shape, adapted from github.com/google/gopacket's
// cgo-backed pcap.Handle to the pure-Go
// github.com/dreadl0ck/gopacket/pcapgo reader, since spec.md §6 describes
// the on-disk format directly rather than delegating to libpcap.
package capture

import (
	"io"
	"os"

	"github.com/dreadl0ck/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/dreadl0ck/streamcap/types"
)

// ErrNotStarted is returned by Next when called before Open.
var ErrNotStarted = errors.New("capture: reader not started")

// linkTypeOf maps a gopacket/pcapgo link type constant to the small set
// spec.md §6 names. Unrecognized values pass through as LinkRaw so the
// link decoder can still attempt a raw-IP peek.
func linkTypeOf(v int) types.LinkType {
	switch v {
	case 1:
		return types.LinkEthernet
	case 113:
		return types.LinkSLL
	default:
		return types.LinkRaw
	}
}

// Record is one captured frame handed to the decode pipeline.
type Record struct {
	Bytes     []byte
	Timestamp int64 // microseconds since the Unix epoch
	LinkType  types.LinkType
}

// FileSource reads frames from a single `.pcap` file, per the format
// spec.md §6 describes (24-byte header, magic 0xa1b2c3d4/0xa1b23c4d).
type FileSource struct {
	path   string
	file   *os.File
	reader *pcapgo.Reader
}

// NewFileSource builds an unopened source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Open opens the file and parses its 24-byte header.
func (s *FileSource) Open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return errors.Wrapf(err, "capture: opening %s", s.path)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "capture: parsing pcap header of %s", s.path)
	}

	s.file = f
	s.reader = r

	return nil
}

// LinkType reports the file's declared link type.
func (s *FileSource) LinkType() types.LinkType {
	if s.reader == nil {
		return types.LinkEthernet
	}
	return linkTypeOf(int(s.reader.LinkType()))
}

// Next returns the next record, io.EOF at end of file, or a parse error.
// Nanosecond-resolution files are truncated to microseconds, per spec.md
// §6.
func (s *FileSource) Next() (Record, error) {
	if s.reader == nil {
		return Record{}, ErrNotStarted
	}

	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, errors.Wrap(err, "capture: reading packet")
	}

	return Record{
		Bytes:     data,
		Timestamp: ci.Timestamp.UnixNano() / 1000,
		LinkType:  s.LinkType(),
	}, nil
}

// Close releases the underlying file handle.
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}
