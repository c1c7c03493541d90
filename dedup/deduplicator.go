package dedup

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"casas_scrooper/identity"
	"casas_scrooper/location"
	"casas_scrooper/models"
)

// Result is the outcome of one batch.
type Result struct {
	Listings       []*models.Listing
	Stats          models.DedupStats
	Buckets        int
	LargestBucket  int
	MergedClusters int
}

// Deduplicator runs the partition, cluster and merge pipeline over a batch.
// It keeps no state between calls.
type Deduplicator struct {
	normalizer *location.Normalizer
	scorer     *Scorer
	grouper    *Grouper
	merger     *Merger
	opts       Options
	logger     *zap.Logger
}

// New creates a Deduplicator. It fails if opts breaks the weight invariant.
func New(normalizer *location.Normalizer, merger *Merger, opts Options, logger *zap.Logger) (*Deduplicator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if normalizer == nil {
		normalizer = location.NewNormalizer(nil)
	}
	if merger == nil {
		merger = NewMerger(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	scorer := NewScorer(normalizer, opts)
	return &Deduplicator{
		normalizer: normalizer,
		scorer:     scorer,
		grouper:    NewGrouper(scorer, opts.Threshold),
		merger:     merger,
		opts:       opts,
		logger:     logger,
	}, nil
}

func (d *Deduplicator) Grouper() *Grouper { return d.grouper }
func (d *Deduplicator) Merger() *Merger   { return d.merger }

// Deduplicate returns the batch with every duplicate cluster replaced by its
// merged listing. Unmerged listings are returned as the same pointers. Output
// is grouped by fingerprint bucket, so it does not follow input order.
func (d *Deduplicator) Deduplicate(ctx context.Context, listings []*models.Listing) ([]*models.Listing, error) {
	result, err := d.Run(ctx, listings)
	if err != nil {
		return nil, err
	}
	return result.Listings, nil
}

type bucket struct {
	fingerprint string
	members     []*prepared
}

// Run is Deduplicate plus batch statistics. Buckets are clustered
// concurrently; results are assembled in bucket order, so the output is the
// same as sequential processing.
func (d *Deduplicator) Run(ctx context.Context, listings []*models.Listing) (*Result, error) {
	for i, l := range listings {
		if l == nil {
			return nil, fmt.Errorf("listing %d: %w", i, ErrNilListing)
		}
		if l.Source == "" || l.ExternalID == "" {
			return nil, fmt.Errorf("listing %d: %w", i, ErrMalformedListing)
		}
	}

	buckets := d.partition(listings)
	outputs := make([][]*models.Listing, len(buckets))
	mergedCounts := make([]int, len(buckets))
	largest := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.workers())

	for i, b := range buckets {
		size := len(b.members)
		if size > largest {
			largest = size
		}
		if d.opts.LargeBucketWarn > 0 && size > d.opts.LargeBucketWarn {
			d.logger.Warn("large fingerprint bucket, pairwise comparison is quadratic",
				zap.String("fingerprint", b.fingerprint),
				zap.Int("size", size))
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, merged, err := d.processBucket(b)
			if err != nil {
				return fmt.Errorf("bucket %s: %w", b.fingerprint, err)
			}
			outputs[i] = out
			mergedCounts[i] = merged
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Listings:      make([]*models.Listing, 0, len(listings)),
		Buckets:       len(buckets),
		LargestBucket: largest,
	}
	for i := range buckets {
		result.Listings = append(result.Listings, outputs[i]...)
		result.MergedClusters += mergedCounts[i]
	}
	result.Stats = Stats(len(listings), len(result.Listings))

	d.logger.Debug("dedup batch complete",
		zap.Int("input", len(listings)),
		zap.Int("output", len(result.Listings)),
		zap.Int("buckets", result.Buckets),
		zap.Int("largest_bucket", largest),
		zap.Int("merged_clusters", result.MergedClusters))

	return result, nil
}

// partition groups listings by fingerprint, keeping first-seen bucket order
// and input order within each bucket.
func (d *Deduplicator) partition(listings []*models.Listing) []*bucket {
	index := make(map[string]*bucket)
	var ordered []*bucket

	for _, l := range listings {
		fp := identity.Fingerprint(l, d.normalizer)
		b, ok := index[fp]
		if !ok {
			b = &bucket{fingerprint: fp}
			index[fp] = b
			ordered = append(ordered, b)
		}
		b.members = append(b.members, d.scorer.prepare(l))
	}
	return ordered
}

func (d *Deduplicator) processBucket(b *bucket) ([]*models.Listing, int, error) {
	if len(b.members) == 1 {
		return []*models.Listing{b.members[0].listing}, 0, nil
	}

	var out []*models.Listing
	merged := 0
	for _, group := range d.grouper.cluster(b.members) {
		if len(group) == 1 {
			out = append(out, group[0].listing)
			continue
		}

		cluster := make([]*models.Listing, len(group))
		for i, p := range group {
			cluster[i] = p.listing
		}
		canonical, err := d.merger.Merge(cluster)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, canonical)
		merged++
	}
	return out, merged, nil
}
