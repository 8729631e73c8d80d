// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/pkg/types"
)

var (
	// ErrNoViews is returned when Compute is given no view names.
	ErrNoViews = errors.New("no views to fingerprint")

	// ErrAllViewsFailed is returned when every view query failed.
	ErrAllViewsFailed = errors.New("every view query failed")
)

// Composite is a subject's combined fingerprint with its constituents.
type Composite struct {
	SubjectID string                  `json:"subject_id" yaml:"subject_id"`
	Hash      string                  `json:"hash" yaml:"hash"`
	Views     []types.ViewFingerprint `json:"views" yaml:"views"`

	// Failed lists views whose query failed and were hashed as empty.
	Failed []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// canonicalView is the hashed part of a ViewFingerprint. ComputedAt is left
// out so the hash depends on data only.
type canonicalView struct {
	RecordCount int64   `json:"record_count"`
	LatestDate  *string `json:"latest_date"`
	IDSetSize   int64   `json:"id_set_size"`
}

// Hash combines view fingerprints into one SHA-256 hex digest. The input is
// serialised as a JSON object keyed by view name; encoding/json writes map
// keys sorted, so the digest does not depend on input order.
func Hash(views []types.ViewFingerprint) (string, error) {
	canonical := make(map[string]canonicalView, len(views))
	for _, v := range views {
		cv := canonicalView{RecordCount: v.RecordCount, IDSetSize: v.IDSetSize}
		if v.LatestDate != "" {
			d := v.LatestDate
			cv.LatestDate = &d
		}
		canonical[v.ViewName] = cv
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("serialising fingerprints: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Compute returns the composite fingerprint hash for subjectID over views.
func (f *Fingerprinter) Compute(ctx context.Context, views []string, subjectID string) (string, error) {
	c, err := f.ComputeDetailed(ctx, views, subjectID)
	if err != nil {
		return "", err
	}
	return c.Hash, nil
}

// ComputeDetailed fingerprints every named view and hashes the result.
//
// An unreachable source or a cancelled context is returned as an error. A
// single failing view is logged and hashed as empty so one bad view does not
// block the rest; if every view fails, ErrAllViewsFailed is returned.
func (f *Fingerprinter) ComputeDetailed(ctx context.Context, views []string, subjectID string) (Composite, error) {
	names := slices.Compact(slices.Sorted(slices.Values(views)))
	if len(names) == 0 {
		return Composite{}, ErrNoViews
	}

	if err := f.source.Ping(ctx); err != nil {
		return Composite{}, fmt.Errorf("fingerprint source unavailable: %w", err)
	}

	fps := make([]types.ViewFingerprint, len(names))
	errs := make([]error, len(names))

	var g errgroup.Group
	g.SetLimit(f.maxParallel)
	for i, name := range names {
		g.Go(func() error {
			fps[i], errs[i] = f.FingerprintView(ctx, name, subjectID)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Composite{}, fmt.Errorf("fingerprinting subject %s: %w", subjectID, err)
	}

	var failed []string
	for i, err := range errs {
		if err == nil {
			continue
		}
		f.log.Warn("view fingerprint failed, treating as empty",
			logger.String("view", names[i]),
			logger.String("subject_id", subjectID),
			logger.Err(err),
		)
		failed = append(failed, names[i])
		fps[i] = types.ViewFingerprint{ViewName: names[i], ComputedAt: f.now().UTC()}
	}
	if len(failed) == len(names) {
		return Composite{}, fmt.Errorf("%w for subject %s: %v", ErrAllViewsFailed, subjectID, errors.Join(errs...))
	}

	hash, err := Hash(fps)
	if err != nil {
		return Composite{}, err
	}

	f.log.Debug("composite fingerprint computed",
		logger.String("subject_id", subjectID),
		logger.Int("views", len(names)),
		logger.String("hash", hash),
	)

	return Composite{
		SubjectID: subjectID,
		Hash:      hash,
		Views:     fps,
		Failed:    failed,
	}, nil
}
