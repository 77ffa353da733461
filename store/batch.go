// Package store holds query helpers shared by the services.
package store

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// MaxInQuery is the largest id list sent in a single IN lookup.
const MaxInQuery = 10

// Keyed is implemented by models that can be fetched by primary key.
type Keyed interface {
	PrimaryKey() uint
}

// Chunk splits ids into consecutive groups of at most size.
func Chunk(ids []uint, size int) [][]uint {
	if size <= 0 {
		size = MaxInQuery
	}
	var chunks [][]uint
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

// ByIDs fetches the records with the given ids using one query per chunk
// of at most MaxInQuery ids, run concurrently. Duplicate ids are looked up
// once. The result follows the first-seen order of ids; ids with no record
// are skipped.
func ByIDs[T Keyed](ctx context.Context, db *gorm.DB, ids []uint) ([]T, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return []T{}, nil
	}

	var (
		mu    sync.Mutex
		found = make(map[uint]T, len(unique))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range Chunk(unique, MaxInQuery) {
		g.Go(func() error {
			var part []T
			if err := db.WithContext(gctx).Where("id IN ?", chunk).Find(&part).Error; err != nil {
				return err
			}
			// merge is keyed by id, so chunk completion order does not matter
			mu.Lock()
			for _, rec := range part {
				found[rec.PrimaryKey()] = rec
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(found))
	for _, id := range unique {
		if rec, ok := found[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
