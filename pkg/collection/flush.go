package collection

// internalFlush implements spec §4.7: no-op if lsn is already flushed,
// otherwise encode the current page under the flusher lock and write it
// at its LSN-derived slot.
func (c *Collection) internalFlush(lsn int64, trigger string) error {
	if c.lastFlushedLSN.Load() >= lsn {
		return nil
	}

	c.coord.LockFlusher()
	defer c.coord.UnlockFlusher()

	if err := c.pageFile.EnsureExists(); err != nil {
		return err
	}

	position := c.pagePosition(lsn)
	page := c.currentPage.Load()
	if err := c.pageFile.WritePage(position, page); err != nil {
		return err
	}

	newSize := position + int64(c.pageSize)
	for {
		old := c.fileSize.Load()
		if old >= newSize {
			break
		}
		if c.fileSize.CompareAndSwap(old, newSize) {
			break
		}
	}
	c.lastFlushedLSN.Store(lsn)

	if c.metrics != nil {
		c.metrics.RecordFlush(c.name, trigger)
		c.cacheMu.Lock()
		cacheLen := c.cache.Len()
		c.cacheMu.Unlock()
		c.metrics.UpdateFileStats(c.name, c.fileSize.Load(), int(c.fileSize.Load()/int64(c.pageSize)), cacheLen)
	}

	c.log.Debug("flush completed").Str("trigger", trigger).Int64("lsn", lsn).Send()
	return nil
}

// Flush cancels any pending debounced flush and durably writes the
// current page up through max_lsn (spec §4.7).
func (c *Collection) Flush() error {
	c.timer.Cancel()
	return c.internalFlush(c.maxLSN.Load(), "manual")
}

// MaxLSN reports the largest LSN allocated so far.
func (c *Collection) MaxLSN() int64 { return c.maxLSN.Load() }

// LastFlushedLSN reports the largest LSN whose page is durably written.
func (c *Collection) LastFlushedLSN() int64 { return c.lastFlushedLSN.Load() }
