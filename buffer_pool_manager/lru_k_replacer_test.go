package buffer_pool_manager

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

// backwardKDistance returns the frame's backward k-distance at the current time.
// infinite is set when the frame has fewer than k recorded accesses, tracked is false when
// the frame has no history at all.
func (replacer *LRUKReplacer) backwardKDistance(frameId FrameID) (distance uint64, infinite bool, tracked bool) {

	replacer.mutex.Lock()
	defer replacer.mutex.Unlock()

	node, exists := replacer.nodes[frameId]
	if !exists {
		return 0, false, false
	}

	if len(node.history) < replacer.k {
		return 0, true, true
	}

	return replacer.currentTimestamp - node.history[len(node.history)-replacer.k], false, true
}

type LRUKReplacerTestSuite struct {
	suite.Suite
	replacer *LRUKReplacer
}

func (rs *LRUKReplacerTestSuite) SetupTest() {
	rs.replacer = NewLRUKReplacer(8, 2)
}

func (rs *LRUKReplacerTestSuite) TestBackwardKDistance() {

	// accesses at t1, t2, t3.
	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(0)

	distance, infinite, tracked := rs.replacer.backwardKDistance(0)

	rs.Suite.Assert().True(tracked)
	rs.Suite.Assert().False(infinite)

	// now is t3, the 2nd most recent access is t2.
	rs.Suite.Assert().Equal(uint64(1), distance)
}

func (rs *LRUKReplacerTestSuite) TestFewerThanKAccessesIsInfinite() {

	rs.replacer.recordAccess(3)

	_, infinite, tracked := rs.replacer.backwardKDistance(3)

	rs.Suite.Assert().True(tracked)
	rs.Suite.Assert().True(infinite)

	_, _, tracked = rs.replacer.backwardKDistance(4)
	rs.Suite.Assert().False(tracked)
}

func (rs *LRUKReplacerTestSuite) TestInfiniteDistanceEvictedFirst() {

	rs.replacer.recordAccess(1)
	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(0)

	rs.replacer.setEvictable(0, true)
	rs.replacer.setEvictable(1, true)

	victim, ok := rs.replacer.evict()

	rs.Suite.Assert().True(ok)
	rs.Suite.Assert().Equal(FrameID(1), victim)
}

func (rs *LRUKReplacerTestSuite) TestInfiniteDistanceTieBrokenByFirstAccess() {

	rs.replacer.recordAccess(2)
	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(1)

	for frameId := FrameID(0); frameId < 3; frameId++ {
		rs.replacer.setEvictable(frameId, true)
	}

	expected := []FrameID{2, 0, 1}

	for _, frameId := range expected {
		victim, ok := rs.replacer.evict()
		rs.Suite.Assert().True(ok)
		rs.Suite.Assert().Equal(frameId, victim)
	}
}

func (rs *LRUKReplacerTestSuite) TestLargestBackwardKDistanceEvicted() {

	rs.replacer.recordAccess(0) // t1
	rs.replacer.recordAccess(0) // t2
	rs.replacer.recordAccess(1) // t3
	rs.replacer.recordAccess(1) // t4
	rs.replacer.recordAccess(0) // t5

	rs.replacer.setEvictable(0, true)
	rs.replacer.setEvictable(1, true)

	// frame 0 has its 2nd most recent access at t2, frame 1 at t3.
	victim, ok := rs.replacer.evict()

	rs.Suite.Assert().True(ok)
	rs.Suite.Assert().Equal(FrameID(0), victim)
}

func (rs *LRUKReplacerTestSuite) TestNonEvictableFramesSkipped() {

	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(1)

	rs.replacer.setEvictable(1, true)

	victim, ok := rs.replacer.evict()
	rs.Suite.Assert().True(ok)
	rs.Suite.Assert().Equal(FrameID(1), victim)

	_, ok = rs.replacer.evict()
	rs.Suite.Assert().False(ok)
}

func (rs *LRUKReplacerTestSuite) TestSize() {

	rs.Suite.Assert().Equal(0, rs.replacer.size())

	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(1)
	rs.Suite.Assert().Equal(0, rs.replacer.size())

	rs.replacer.setEvictable(0, true)
	rs.replacer.setEvictable(1, true)
	rs.replacer.setEvictable(1, true)
	rs.Suite.Assert().Equal(2, rs.replacer.size())

	rs.replacer.setEvictable(0, false)
	rs.Suite.Assert().Equal(1, rs.replacer.size())

	// untracked frames are ignored.
	rs.replacer.setEvictable(5, true)
	rs.Suite.Assert().Equal(1, rs.replacer.size())
}

func (rs *LRUKReplacerTestSuite) TestEvictPurgesHistory() {

	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(0)
	rs.replacer.setEvictable(0, true)

	victim, ok := rs.replacer.evict()
	rs.Suite.Assert().True(ok)
	rs.Suite.Assert().Equal(FrameID(0), victim)
	rs.Suite.Assert().Equal(0, rs.replacer.size())

	_, _, tracked := rs.replacer.backwardKDistance(0)
	rs.Suite.Assert().False(tracked)

	// a new access starts from an empty history.
	rs.replacer.recordAccess(0)
	_, infinite, _ := rs.replacer.backwardKDistance(0)
	rs.Suite.Assert().True(infinite)
}

func (rs *LRUKReplacerTestSuite) TestVictimKeepsHistory() {

	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(1)
	rs.replacer.setEvictable(0, true)
	rs.replacer.setEvictable(1, true)

	victim, ok := rs.replacer.victim()
	rs.Suite.Assert().True(ok)
	rs.Suite.Assert().Equal(FrameID(0), victim)
	rs.Suite.Assert().Equal(2, rs.replacer.size())

	// victim does not change what evict picks.
	evicted, ok := rs.replacer.evict()
	rs.Suite.Assert().True(ok)
	rs.Suite.Assert().Equal(victim, evicted)
	rs.Suite.Assert().Equal(1, rs.replacer.size())
}

func (rs *LRUKReplacerTestSuite) TestRemove() {

	rs.replacer.recordAccess(0)
	rs.replacer.recordAccess(1)
	rs.replacer.setEvictable(0, true)

	rs.replacer.remove(0)
	rs.replacer.remove(1)
	rs.replacer.remove(2)

	rs.Suite.Assert().Equal(0, rs.replacer.size())

	_, ok := rs.replacer.evict()
	rs.Suite.Assert().False(ok)
}

func (rs *LRUKReplacerTestSuite) TestInvalidFrameIdPanics() {

	rs.Suite.Assert().Panics(func() { rs.replacer.recordAccess(8) })
	rs.Suite.Assert().Panics(func() { rs.replacer.setEvictable(-1, true) })
	rs.Suite.Assert().Panics(func() { rs.replacer.remove(100) })
}

func (rs *LRUKReplacerTestSuite) TestConcurrentAccess() {

	wg := &sync.WaitGroup{}

	for frameId := FrameID(0); frameId < 8; frameId++ {
		wg.Add(1)
		go func(frameId FrameID) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rs.replacer.recordAccess(frameId)
			}
			rs.replacer.setEvictable(frameId, true)
		}(frameId)
	}
	wg.Wait()

	rs.Suite.Assert().Equal(8, rs.replacer.size())

	evicted := make(map[FrameID]bool)
	for {
		victim, ok := rs.replacer.evict()
		if !ok {
			break
		}
		evicted[victim] = true
	}

	rs.Suite.Assert().Len(evicted, 8)
}

func TestLRUKReplacer(t *testing.T) {

	suite.Run(t, new(LRUKReplacerTestSuite))
}
