// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package p2p

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/devp2p/common/mclock"
	"github.com/ethereum/devp2p/log"
	"github.com/ethereum/devp2p/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRespCode = uint64(17)

func newTestTracker() (*requestTracker, *mclock.Simulated) {
	clock := new(mclock.Simulated)
	return newRequestTracker(clock, log.Root()), clock
}

func futurePending(f *ResponseFuture) bool {
	select {
	case <-f.Done():
		return false
	default:
		return true
	}
}

func TestRequestTrackerExplicitID(t *testing.T) {
	tr, _ := newTestTracker()

	id1, fut1 := tr.track(testRespCode, time.Second)
	id2, fut2 := tr.track(testRespCode, time.Second)
	require.NotEqual(t, id1, id2)

	// Answer the second request first.
	resolved := tr.dispatchResponse(testRespCode, id2, true, Msg{Code: 1, Size: 42})
	assert.True(t, resolved)

	msg, err := fut2.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), msg.Size)
	assert.True(t, futurePending(fut1), "first request resolved out of order")

	resolved = tr.dispatchResponse(testRespCode, id1, true, Msg{Code: 1, Size: 7})
	assert.True(t, resolved)
	msg, err = fut1.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), msg.Size)
}

func TestRequestTrackerFIFO(t *testing.T) {
	tr, _ := newTestTracker()

	_, fut1 := tr.track(testRespCode, time.Second)
	_, fut2 := tr.track(testRespCode, time.Second)
	_, fut3 := tr.track(testRespCode, time.Second)

	// Without explicit ids, responses resolve the oldest request first.
	require.True(t, tr.dispatchResponse(testRespCode, 0, false, Msg{Size: 1}))
	require.True(t, tr.dispatchResponse(testRespCode, 0, false, Msg{Size: 2}))

	msg, err := fut1.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), msg.Size)
	msg, err = fut2.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), msg.Size)
	assert.True(t, futurePending(fut3))
}

func TestRequestTrackerUnknownID(t *testing.T) {
	tr, _ := newTestTracker()

	id, fut := tr.track(testRespCode, time.Second)

	// A response with an id that was never handed out is dropped.
	assert.False(t, tr.dispatchResponse(testRespCode, id+1000, true, Msg{}))
	// A response on a message id with no outstanding requests is dropped too.
	assert.False(t, tr.dispatchResponse(testRespCode+1, id, true, Msg{}))
	assert.True(t, futurePending(fut))
}

// This test exercises concurrent registration and dispatch. It is intended to
// be run with the race detector.
func TestRequestTrackerConcurrent(t *testing.T) {
	tr, _ := newTestTracker()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tr.track(testRespCode, time.Minute)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			tr.dispatchResponse(testRespCode, uint64(100000+i), true, Msg{})
		}
	}()
	wg.Wait()
}

func TestRequestTrackerTimeout(t *testing.T) {
	tr, clock := newTestTracker()

	id, fut := tr.track(testRespCode, 100*time.Millisecond)
	clock.Run(200 * time.Millisecond)

	_, err := fut.Wait()
	assert.ErrorIs(t, err, ErrRequestTimeout)

	// A late response for the timed-out request is tolerated and dropped.
	assert.False(t, tr.dispatchResponse(testRespCode, id, true, Msg{Size: 9}))
	_, err = fut.Wait()
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestRequestTrackerTimeoutSweep(t *testing.T) {
	tr, clock := newTestTracker()

	_, fut1 := tr.track(testRespCode, 100*time.Millisecond)
	id2, fut2 := tr.track(testRespCode, time.Minute)
	clock.Run(200 * time.Millisecond)

	_, err := fut1.Wait()
	require.ErrorIs(t, err, ErrRequestTimeout)

	// The expired entry does not shadow the live one.
	require.True(t, tr.dispatchResponse(testRespCode, id2, true, Msg{Size: 5}))
	msg, err := fut2.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), msg.Size)
}

func TestRequestTrackerDrain(t *testing.T) {
	tr, _ := newTestTracker()

	_, fut1 := tr.track(testRespCode, time.Minute)
	_, fut2 := tr.track(testRespCode+1, time.Minute)

	tr.drain(DiscQuitting)

	for _, fut := range []*ResponseFuture{fut1, fut2} {
		_, err := fut.Wait()
		var discErr *PeerDisconnectedError
		require.True(t, errors.As(err, &discErr))
		assert.Equal(t, DiscQuitting, discErr.Reason)
	}

	// New responses after the drain find nothing to resolve.
	assert.False(t, tr.dispatchResponse(testRespCode, 1, true, Msg{}))
}

func TestRequestIDFromBody(t *testing.T) {
	body, _ := rlp.EncodeToBytes([]interface{}{uint64(77), "payload"})
	id, err := requestIDFromBody(body)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), id)

	// Not a list.
	raw, _ := rlp.EncodeToBytes("x")
	_, err = requestIDFromBody(raw)
	assert.Error(t, err)
}
