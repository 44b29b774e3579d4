package attachments

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAttachment(id, filename string) Attachment {
	return Attachment{
		ProviderID: id,
		Filename:   filename,
		MimeType:   "application/pdf",
		Size:       10,
	}
}

func TestIndex_AddAndGet(t *testing.T) {
	idx := NewMetadataIndex(nil)
	idx.Add("m1", Attachment{ProviderID: "a1", Filename: "f.pdf", MimeType: "application/pdf", Size: 10})

	rec, ok := idx.Get("m1", "f.pdf")
	require.True(t, ok)
	assert.Equal(t, "a1", rec.ProviderID)
	assert.Equal(t, "m1", rec.MessageID)
	assert.Equal(t, "f.pdf", rec.Filename)
	assert.Equal(t, "application/pdf", rec.MimeType)
	assert.EqualValues(t, 10, rec.Size)
}

func TestIndex_GetMissing(t *testing.T) {
	idx := NewMetadataIndex(nil)

	_, ok := idx.Get("m1", "f.pdf")
	assert.False(t, ok)
}

func TestIndex_OverwriteSameKey(t *testing.T) {
	idx := NewMetadataIndex(nil)
	idx.Add("m1", testAttachment("a1", "f.pdf"))
	idx.Add("m1", testAttachment("a2", "f.pdf"))

	rec, ok := idx.Get("m1", "f.pdf")
	require.True(t, ok)
	assert.Equal(t, "a2", rec.ProviderID)
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_ExpiredRecordLazilyDeleted(t *testing.T) {
	idx := NewMetadataIndexWith(DefaultCapacity, time.Hour, nil)
	idx.Add("m1", testAttachment("a1", "f.pdf"))

	// Advance past the TTL without running a sweep
	idx.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, ok := idx.Get("m1", "f.pdf")
	assert.False(t, ok, "an expired record must not be returned even without a cleanup sweep")
	assert.Zero(t, idx.Len(), "the expired record is deleted on read")
}

func TestIndex_CleanExpired(t *testing.T) {
	idx := NewMetadataIndex(nil)
	base := time.Now()

	idx.now = func() time.Time { return base }
	idx.Add("m1", testAttachment("a1", "old.pdf"))
	idx.Add("m2", testAttachment("a2", "old.pdf"))

	idx.now = func() time.Time { return base.Add(45 * time.Minute) }
	idx.Add("m3", testAttachment("a3", "new.pdf"))

	idx.now = func() time.Time { return base.Add(70 * time.Minute) }
	removed := idx.CleanExpired()

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, idx.Len())
	_, ok := idx.Get("m3", "new.pdf")
	assert.True(t, ok)
}

func TestIndex_CapacityNeverExceeded(t *testing.T) {
	idx := NewMetadataIndexWith(8, time.Hour, nil)

	for i := 0; i < 50; i++ {
		idx.Add(fmt.Sprintf("m%d", i), testAttachment(fmt.Sprintf("a%d", i), "f.pdf"))
		assert.LessOrEqual(t, idx.Len(), 8)
	}
}

func TestIndex_FullCapacityEvictsOldest(t *testing.T) {
	// Filling to capacity then adding one more non-expired record evicts
	// exactly the oldest record by insertion time.
	idx := NewMetadataIndex(nil)
	base := time.Now()

	for i := 0; i < DefaultCapacity; i++ {
		tick := base.Add(time.Duration(i) * time.Second)
		idx.now = func() time.Time { return tick }
		idx.Add(fmt.Sprintf("m%d", i), testAttachment(fmt.Sprintf("a%d", i), "f.pdf"))
	}
	require.Equal(t, DefaultCapacity, idx.Len())

	last := base.Add(time.Duration(DefaultCapacity) * time.Second)
	idx.now = func() time.Time { return last }
	idx.Add("m-extra", testAttachment("a-extra", "f.pdf"))

	assert.Equal(t, DefaultCapacity, idx.Len())
	_, ok := idx.Get("m0", "f.pdf")
	assert.False(t, ok, "the oldest record is evicted")
	_, ok = idx.Get("m1", "f.pdf")
	assert.True(t, ok, "only the single oldest record is evicted")
	_, ok = idx.Get("m-extra", "f.pdf")
	assert.True(t, ok)
}

func TestIndex_CapacityPrefersExpiredPurge(t *testing.T) {
	// When expired records exist, hitting capacity purges them instead of
	// evicting live records.
	idx := NewMetadataIndexWith(4, time.Hour, nil)
	base := time.Now()

	idx.now = func() time.Time { return base }
	idx.Add("m-expired", testAttachment("a0", "f.pdf"))

	fresh := base.Add(90 * time.Minute)
	idx.now = func() time.Time { return fresh }
	idx.Add("m1", testAttachment("a1", "f.pdf"))
	idx.Add("m2", testAttachment("a2", "f.pdf"))
	idx.Add("m3", testAttachment("a3", "f.pdf"))
	require.Equal(t, 4, idx.Len())

	idx.Add("m4", testAttachment("a4", "f.pdf"))

	assert.Equal(t, 4, idx.Len())
	for _, msg := range []string{"m1", "m2", "m3", "m4"} {
		_, ok := idx.Get(msg, "f.pdf")
		assert.True(t, ok, "live record %s must survive when an expired one could be purged", msg)
	}
}
