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
	"time"

	"github.com/ethereum/devp2p/common/mclock"
	"github.com/ethereum/devp2p/log"
	"github.com/ethereum/devp2p/rlp"
)

// ErrRequestTimeout resolves futures whose response did not arrive in time.
var ErrRequestTimeout = errors.New("request timed out")

// ResponseFuture resolves with an incoming message: the response of a tracked
// request, or the next message of an id registered with Peer.AwaitMsg. It
// fails with ErrRequestTimeout or with a *PeerDisconnectedError.
type ResponseFuture struct {
	done chan struct{}

	mu       sync.Mutex
	finished bool
	msg      Msg
	err      error
}

func newResponseFuture() *ResponseFuture {
	return &ResponseFuture{done: make(chan struct{})}
}

// Wait blocks until the future is resolved.
func (f *ResponseFuture) Wait() (Msg, error) {
	<-f.done
	return f.msg, f.err
}

// Done returns a channel that is closed when the future resolves.
func (f *ResponseFuture) Done() <-chan struct{} {
	return f.done
}

// resolve completes the future. Completing a finished future is a programming
// error, except from the timeout path which may race with a late response.
func (f *ResponseFuture) resolve(msg Msg, err error, fromTimeout bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		if fromTimeout {
			return
		}
		panic("p2p: response future resolved twice")
	}
	f.finished = true
	f.msg = msg
	f.err = err
	close(f.done)
}

func (f *ResponseFuture) isFinished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}

// outstandingRequest is one in-flight request awaiting its response.
type outstandingRequest struct {
	reqID     uint64
	fut       *ResponseFuture
	timeoutAt mclock.AbsTime
	timer     mclock.Timer
}

// requestTracker correlates incoming responses with the in-flight requests of
// one peer. Correlation is by explicit request id when the protocol carries
// one in the message body, and oldest-first otherwise.
type requestTracker struct {
	clock mclock.Clock
	log   log.Logger

	mu          sync.Mutex
	lastReqID   uint64
	outstanding map[uint64][]*outstandingRequest // keyed by peer-local response msg id
}

func newRequestTracker(clock mclock.Clock, logger log.Logger) *requestTracker {
	return &requestTracker{
		clock:       clock,
		log:         logger,
		outstanding: make(map[uint64][]*outstandingRequest),
	}
}

// track registers a request expecting a response with the given peer-local
// message id. It returns the allocated request id and the response future.
// The future resolves with ErrRequestTimeout if no response arrives within
// the timeout.
func (t *requestTracker) track(respMsgCode uint64, timeout time.Duration) (uint64, *ResponseFuture) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastReqID++
	req := &outstandingRequest{
		reqID:     t.lastReqID,
		fut:       newResponseFuture(),
		timeoutAt: t.clock.Now().Add(timeout),
	}
	req.timer = t.clock.AfterFunc(timeout, func() {
		req.fut.resolve(Msg{}, ErrRequestTimeout, true)
	})
	t.outstanding[respMsgCode] = append(t.outstanding[respMsgCode], req)
	return req.reqID, req.fut
}

// dispatchResponse resolves the outstanding request matching an incoming
// response message. It reports whether a request was resolved. Requests whose
// timeout has already fired are swept on the way.
func (t *requestTracker) dispatchResponse(respMsgCode uint64, reqID uint64, hasID bool, msg Msg) bool {
	t.mu.Lock()
	list := t.outstanding[respMsgCode]

	var (
		match    *outstandingRequest
		matchIdx int
	)
	for i := 0; i < len(list); {
		req := list[i]
		if req.fut.isFinished() {
			// Timed out, remove the entry.
			last := len(list) - 1
			list[i] = list[last]
			list = list[:last]
			continue
		}
		if hasID {
			if req.reqID == reqID {
				match, matchIdx = req, i
			}
		} else if match == nil || req.reqID < match.reqID {
			match, matchIdx = req, i
		}
		i++
	}
	if match == nil {
		t.outstanding[respMsgCode] = list
		lastReqID := t.lastReqID
		t.mu.Unlock()
		if hasID && reqID > lastReqID {
			t.log.Debug("Dropping response with unknown request id", "code", respMsgCode, "reqid", reqID)
		}
		return false
	}
	last := len(list) - 1
	list[matchIdx] = list[last]
	t.outstanding[respMsgCode] = list[:last]
	t.mu.Unlock()

	// Stop the timer before resolving. If it has fired already, the future
	// holds the timeout result and the response is dropped as late.
	if !match.timer.Stop() {
		return false
	}
	match.fut.resolve(msg, nil, false)
	return true
}

// drain resolves all outstanding requests with a disconnect error.
func (t *requestTracker) drain(reason DiscReason) {
	t.mu.Lock()
	all := t.outstanding
	t.outstanding = make(map[uint64][]*outstandingRequest)
	t.mu.Unlock()

	err := &PeerDisconnectedError{Reason: reason}
	for _, list := range all {
		for _, req := range list {
			if req.timer.Stop() {
				req.fut.resolve(Msg{}, err, false)
			}
		}
	}
}

// requestIDFromBody extracts the explicit request id of a message, encoded as
// the first element of the RLP list forming the message body.
func requestIDFromBody(body []byte) (uint64, error) {
	content, _, err := rlp.SplitList(body)
	if err != nil {
		return 0, err
	}
	id, _, err := rlp.SplitUint64(content)
	return id, err
}
