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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultOptionsValidate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())
}

func TestOptionsValidate(t *testing.T) {
	base := DefaultOptions

	tests := []struct {
		name    string
		mutate  func(o Options) Options
		wantErr error
	}{
		{
			name:    "zero hash table size",
			mutate:  func(o Options) Options { o.HashTableSize = 0; return o },
			wantErr: ErrHashTableSize,
		},
		{
			name:    "non power of two hash table size",
			mutate:  func(o Options) Options { o.HashTableSize = 300; return o },
			wantErr: ErrHashTableSize,
		},
		{
			name:    "zero max connections",
			mutate:  func(o Options) Options { o.MaxConnections = 0; return o },
			wantErr: ErrMaxConnections,
		},
		{
			name:    "idle timeout too low",
			mutate:  func(o Options) Options { o.IdleTimeoutSeconds = 4; return o },
			wantErr: ErrIdleTimeout,
		},
		{
			name:    "time wait too low",
			mutate:  func(o Options) Options { o.TimeWaitSeconds = 0; return o },
			wantErr: ErrTimeWait,
		},
		{
			name:    "zero max queued segments",
			mutate:  func(o Options) Options { o.MaxQueuedSegmentsPerStream = 0; return o },
			wantErr: ErrMaxQueuedSegment,
		},
		{
			name:    "zero fragment limits",
			mutate:  func(o Options) Options { o.MaxFragmentsPerPacket = 0; return o },
			wantErr: ErrFragmentLimits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tt.mutate(base())
			assert.ErrorIs(t, o.Validate(), tt.wantErr)
		})
	}
}
