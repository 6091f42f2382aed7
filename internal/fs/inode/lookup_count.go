package inode

import "github.com/jiripospisil/mountpoint-s3/internal/logger"

// lookupCount tracks how many times the kernel has been given a
// reference to an inode (via lookup/mkdir/create) and not yet returned
// it (via forget). destroy is invoked, at most once, the moment the
// count reaches zero.
//
// Ported from the teacher's fs/inode/lookup_count.go, with one behavior
// change: Dec saturates at zero instead of panicking when asked to
// decrement past it. See DESIGN.md's Open Question resolution -- a
// kernel forget replay after a prior destroy is tolerated, not fatal.
type lookupCount struct {
	count   uint64
	destroy func() error
}

func (lc *lookupCount) Inc() {
	lc.count++
}

// Dec decrements the count by n and returns whether the inode is now
// destroyed.
func (lc *lookupCount) Dec(n uint64) (destroyed bool) {
	wasZero := lc.count == 0
	if n >= lc.count {
		lc.count = 0
	} else {
		lc.count -= n
	}

	if lc.count == 0 {
		destroyed = true
		if lc.destroy != nil && !wasZero {
			if err := lc.destroy(); err != nil {
				logger.Errorf("lookupCount destroy: %v", err)
			}
		}
	}

	return
}
