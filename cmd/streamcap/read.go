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

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreadl0ck/streamcap/capture"
	"github.com/dreadl0ck/streamcap/decoder/packet"
	"github.com/dreadl0ck/streamcap/stream/reassembly"
	"github.com/dreadl0ck/streamcap/types"
)

var (
	debug bool
)

var readCmd = &cobra.Command{
	Use:   "read [pcap file]",
	Short: "Decode a pcap file and reassemble its TCP streams",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRead(args[0], cmd.OutOrStdout())
	},
}

func init() {
	readCmd.Flags().BoolVar(&debug, "debug", false, "enable verbose decode logging")
	rootCmd.AddCommand(readCmd)
}

func runRead(path string, out io.Writer) error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	opts := types.DefaultOptions()
	opts.Debug = debug

	if err := opts.Validate(); err != nil {
		return err
	}

	src := capture.NewFileSource(path)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	dec := packet.New(opts, log)

	cb := reassembly.Callbacks{
		BeginStream: func(conn interface{}, dir types.Direction) (bool, interface{}) {
			fmt.Fprintf(out, "stream opened: %s\n", dir)
			return true, nil
		},
		OnPayload: func(data []byte, offset int64, conn interface{}, dir types.Direction, token interface{}) bool {
			fmt.Fprintf(out, "%s: %d bytes at offset %d\n", dir, len(data), offset)
			return true
		},
		OnGap: func(size int, offset int64, conn interface{}, dir types.Direction, token interface{}) bool {
			fmt.Fprintf(out, "%s: gap of %d bytes at offset %d\n", dir, size, offset)
			return true
		},
		EndStream: func(conn interface{}, dir types.Direction, token interface{}) {
			fmt.Fprintf(out, "stream closed: %s\n", dir)
		},
	}

	engine := reassembly.New(opts, cb, log)

	var lastTS int64

	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		lastTS = rec.Timestamp

		pkt, ok := dec.Decode(rec.Bytes, rec.Timestamp, rec.LinkType)
		if !ok {
			continue
		}

		if pkt.Protocol == types.ProtoTCP {
			engine.Feed(pkt, rec.Timestamp)
		}
	}

	engine.Purge(lastTS)

	return nil
}
