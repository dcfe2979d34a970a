package http2

import (
	"sort"
	"sync"
)

// Streams is the connection's live-stream registry, kept sorted by id so
// Get/Del are binary searches, matching the teacher's approach.
type Streams struct {
	mu           sync.Mutex
	list         []*Stream
	maxConcurrent uint32
	lastPeerID   uint32
}

func NewStreams(maxConcurrent uint32) *Streams {
	return &Streams{maxConcurrent: maxConcurrent}
}

func (strms *Streams) Insert(s *Stream) {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	strms.insertLocked(s)
}

func (strms *Streams) insertLocked(s *Stream) {
	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= s.id
	})
	if i == len(strms.list) {
		strms.list = append(strms.list, s)
		return
	}
	strms.list = append(strms.list, nil)
	copy(strms.list[i+1:], strms.list[i:])
	strms.list[i] = s
}

func (strms *Streams) Del(id uint32) *Stream {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= id
	})
	if i < len(strms.list) && strms.list[i].id == id {
		strm := strms.list[i]
		strms.list = append(strms.list[:i], strms.list[i+1:]...)
		return strm
	}
	return nil
}

func (strms *Streams) Get(id uint32) *Stream {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= id
	})
	if i < len(strms.list) && strms.list[i].id == id {
		return strms.list[i]
	}
	return nil
}

func (strms *Streams) Len() int {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	return len(strms.list)
}

// Each calls f for every live stream, in id order. f must not mutate the
// registry.
func (strms *Streams) Each(f func(*Stream)) {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	for _, s := range strms.list {
		f(s)
	}
}

// OpenServer admits a server-side stream created by an incoming initial
// HEADERS. Returns (nil, false) when the registry is already at the
// negotiated concurrency cap, in which case the caller must RST_STREAM
// with REFUSED_STREAM rather than insert.
func (strms *Streams) OpenServer(id uint32, conn *ConnWindow, streamInitial int32, maxBodyLen uint32) (*Stream, bool) {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	if uint32(len(strms.list)) >= strms.maxConcurrent {
		return nil, false
	}
	if id > strms.lastPeerID {
		strms.lastPeerID = id
	}
	s := NewStream(id, conn, streamInitial, maxBodyLen)
	strms.insertLocked(s)
	return s, true
}

func (strms *Streams) LastPeerID() uint32 {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	return strms.lastPeerID
}

func (strms *Streams) noteIncomingID(id uint32) {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	if id > strms.lastPeerID {
		strms.lastPeerID = id
	}
}
