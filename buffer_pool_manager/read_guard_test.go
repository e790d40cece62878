package buffer_pool_manager

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ReadGuardTestSuite struct {
	suite.Suite
	bufferPool *BufferPoolManager
	pageId     PageID
}

func (rs *ReadGuardTestSuite) SetupTest() {

	rs.bufferPool = openBufferPool(rs.T(), filepath.Join(rs.T().TempDir(), "kestrel.db"), 5, 2)

	guard, err := rs.bufferPool.NewPage()
	rs.Require().NoError(err)

	copy(guard.GetDataMut(), createPage(1))
	rs.pageId = guard.GetPageId()
	guard.Done()
}

func (rs *ReadGuardTestSuite) TearDownTest() {

	checkInvariants(rs.T(), rs.bufferPool)
	rs.Suite.Assert().NoError(rs.bufferPool.Close())
}

func (rs *ReadGuardTestSuite) TestReadGuardDone() {

	guard, err := rs.bufferPool.NewReadGuard(rs.pageId)

	rs.Suite.Assert().NoError(err)

	ok := guard.Done()

	rs.Suite.Assert().Equal(true, ok)

	ok = guard.Done()

	rs.Suite.Assert().Equal(false, ok)

	pinCount, _ := rs.bufferPool.GetPinCount(rs.pageId)
	rs.Suite.Assert().Equal(0, pinCount)
}

func (rs *ReadGuardTestSuite) TestReadGuardAccessors() {

	guard, err := rs.bufferPool.NewReadGuard(rs.pageId)
	rs.Require().NoError(err)

	rs.Suite.Assert().True(guard.IsActive())
	rs.Suite.Assert().Equal(rs.pageId, guard.GetPageId())
	rs.Suite.Assert().True(checkPage(1, guard.GetData()))

	guard.Done()

	rs.Suite.Assert().False(guard.IsActive())
	rs.Suite.Assert().Equal(INVALID_PAGE_ID, guard.GetPageId())
	rs.Suite.Assert().Nil(guard.GetData())
}

func (rs *ReadGuardTestSuite) TestReadersShareThePage() {

	const readers = 4

	guards := make([]*ReadGuard, readers)
	wg := &sync.WaitGroup{}

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			guard, err := rs.bufferPool.NewReadGuard(rs.pageId)
			rs.Suite.Assert().NoError(err)
			guards[i] = guard
		}(i)
	}
	wg.Wait()

	pinCount, _ := rs.bufferPool.GetPinCount(rs.pageId)
	rs.Suite.Assert().Equal(readers, pinCount)

	for _, guard := range guards {
		rs.Suite.Assert().True(checkPage(1, guard.GetData()))
		guard.Done()
	}
}

func (rs *ReadGuardTestSuite) TestReaderWaitsForWriter() {

	writeGuard, err := rs.bufferPool.NewWriteGuard(rs.pageId)
	rs.Require().NoError(err)

	acquired := make(chan *ReadGuard)

	go func() {
		guard, err := rs.bufferPool.NewReadGuard(rs.pageId)
		rs.Suite.Assert().NoError(err)
		acquired <- guard
	}()

	select {
	case <-acquired:
		rs.Suite.FailNow("read guard acquired while a write guard was held")
	case <-time.After(50 * time.Millisecond):
	}

	copy(writeGuard.GetDataMut(), createPage(2))
	writeGuard.Done()

	guard := <-acquired
	rs.Suite.Assert().True(checkPage(2, guard.GetData()))
	guard.Done()
}

func TestReadGuard(t *testing.T) {

	suite.Run(t, new(ReadGuardTestSuite))
}
