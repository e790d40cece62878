package buffer_pool_manager

import (
	"fmt"
	"sync"
)

// LRUKReplacer picks eviction victims among the frames marked evictable.
//
// The backward k-distance of a frame is the time between now and its k-th most recent access.
// The frame with the largest backward k-distance is evicted. A frame with fewer than k recorded
// accesses has an infinite backward k-distance; among those the frame whose first recorded
// access is the oldest is evicted, which is plain LRU over under-observed frames.
//
// Time is a logical clock that ticks once per recorded access.
type LRUKReplacer struct {

	// synchronizes access to nodes and the clock.
	mutex *sync.Mutex

	k         int
	numFrames int

	currentTimestamp uint64
	nodes            map[FrameID]*lruKNode

	// number of nodes with evictable set.
	evictableCount int
}

type lruKNode struct {
	// access timestamps, oldest first. Only the last k are kept since older ones never
	// decide an eviction.
	history   []uint64
	evictable bool
}

func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {

	return &LRUKReplacer{
		mutex:     &sync.Mutex{},
		k:         k,
		numFrames: numFrames,
		nodes:     make(map[FrameID]*lruKNode, numFrames),
	}
}

func (replacer *LRUKReplacer) checkFrameId(frameId FrameID) {
	if frameId < 0 || int(frameId) >= replacer.numFrames {
		panic(fmt.Sprintf("[LRUKReplacer] frame id out of bound: %d", frameId))
	}
}

// recordAccess appends the current timestamp to the frame's history, tracking the frame
// as non-evictable if it was not tracked yet.
func (replacer *LRUKReplacer) recordAccess(frameId FrameID) {

	replacer.checkFrameId(frameId)

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	replacer.currentTimestamp++

	node, exists := replacer.nodes[frameId]
	if !exists {
		node = &lruKNode{history: make([]uint64, 0, replacer.k)}
		replacer.nodes[frameId] = node
	}

	if len(node.history) == replacer.k {
		copy(node.history, node.history[1:])
		node.history = node.history[:replacer.k-1]
	}
	node.history = append(node.history, replacer.currentTimestamp)
}

// setEvictable toggles whether the frame may be chosen by evict. Untracked frames are ignored.
func (replacer *LRUKReplacer) setEvictable(frameId FrameID, evictable bool) {

	replacer.checkFrameId(frameId)

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	node, exists := replacer.nodes[frameId]
	if !exists || node.evictable == evictable {
		return
	}

	node.evictable = evictable
	if evictable {
		replacer.evictableCount++
	} else {
		replacer.evictableCount--
	}
}

// victim returns the evictable frame with the largest backward k-distance without removing it.
// It returns false if no frame is evictable.
func (replacer *LRUKReplacer) victim() (FrameID, bool) {

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	return replacer.findVictim()
}

// evict removes and returns the evictable frame with the largest backward k-distance.
// It returns false if no frame is evictable.
func (replacer *LRUKReplacer) evict() (FrameID, bool) {

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	victim, found := replacer.findVictim()
	if !found {
		return -1, false
	}

	delete(replacer.nodes, victim)
	replacer.evictableCount--

	return victim, true
}

func (replacer *LRUKReplacer) findVictim() (FrameID, bool) {

	victim := FrameID(-1)
	victimInfinite := false
	var victimTimestamp uint64

	for frameId, node := range replacer.nodes {

		if !node.evictable {
			continue
		}

		// For an infinite distance node the earliest first access wins. For a finite one the
		// oldest k-th most recent access is the largest distance, since now is shared.
		infinite := len(node.history) < replacer.k
		var timestamp uint64
		if infinite {
			timestamp = node.history[0]
		} else {
			timestamp = node.history[len(node.history)-replacer.k]
		}

		switch {
		case victim == -1:
		case infinite && !victimInfinite:
		case infinite == victimInfinite && timestamp < victimTimestamp:
		default:
			continue
		}

		victim, victimInfinite, victimTimestamp = frameId, infinite, timestamp
	}

	return victim, victim != -1
}

// remove drops the frame's access history without counting it as an eviction.
func (replacer *LRUKReplacer) remove(frameId FrameID) {

	replacer.checkFrameId(frameId)

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	node, exists := replacer.nodes[frameId]
	if !exists {
		return
	}

	if node.evictable {
		replacer.evictableCount--
	}
	delete(replacer.nodes, frameId)
}

// size returns the number of evictable frames.
func (replacer *LRUKReplacer) size() int {

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	return replacer.evictableCount
}
