package hybrid

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/singularity-ai/knowledge-core/internal/kv"
)

// allocBlock is how many ids one persisted reservation covers. A crash
// wastes at most the unissued remainder of the current block.
const allocBlock = 64

// Allocator issues strictly increasing 64-bit ids per kind. The
// high-water mark of each kind is persisted to the KV store in blocks,
// so ids stay collision-free across restarts.
type Allocator struct {
	store    kv.Store
	points   sequence
	segments sequence
}

type sequence struct {
	mu       sync.Mutex
	key      string
	next     int64 // last issued id
	reserved int64 // persisted mark; issue up to here without a write
}

// NewAllocator loads the persisted marks and positions both sequences
// above them.
func NewAllocator(ctx context.Context, store kv.Store) (*Allocator, error) {
	a := &Allocator{store: store}
	a.points.key = kv.PointSeqKey
	a.segments.key = kv.SegmentSeqKey
	for _, seq := range []*sequence{&a.points, &a.segments} {
		mark, err := loadMark(ctx, store, seq.key)
		if err != nil {
			return nil, err
		}
		seq.next = mark
		seq.reserved = mark
	}
	return a, nil
}

// NextPointID issues the next point id.
func (a *Allocator) NextPointID(ctx context.Context) (int64, error) {
	return a.next(ctx, &a.points)
}

// NextSegmentID issues the next segment id.
func (a *Allocator) NextSegmentID(ctx context.Context) (int64, error) {
	return a.next(ctx, &a.segments)
}

func (a *Allocator) next(ctx context.Context, seq *sequence) (int64, error) {
	seq.mu.Lock()
	defer seq.mu.Unlock()

	id := seq.next + 1
	if id > seq.reserved {
		// The reservation must be durable before any id from the new
		// block is handed out.
		mark := seq.reserved + allocBlock
		if err := a.store.Put(ctx, seq.key, []byte(strconv.FormatInt(mark, 10))); err != nil {
			return 0, fmt.Errorf("persist id reservation %q: %w", seq.key, err)
		}
		seq.reserved = mark
	}
	seq.next = id
	return id, nil
}

func loadMark(ctx context.Context, store kv.Store, key string) (int64, error) {
	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load id mark %q: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	mark, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id mark %q: %w", key, err)
	}
	return mark, nil
}
