// Package scoring computes the ranking breakdown and stored trust score of a
// server record. Every function is pure: the same record and clock always
// produce the same output.
package scoring

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentregistry-dev/mcpindex/internal/registry/models"
)

// Composite weights.
const (
	WeightQuality     = 0.30
	WeightPopularity  = 0.20
	WeightMaintenance = 0.25
	WeightTrust       = 0.25
)

const day = 24 * time.Hour

// sourceTrust is the ranking trust increment per discovery channel.
var sourceTrust = map[models.Source]float64{
	models.SourceFirstParty:      0.10,
	models.SourceMarketplace:     0.08,
	models.SourcePackageRegistry: 0.06,
	models.SourceVCSHosted:       0.04,
	models.SourceCommunity:       0.02,
}

// Compute returns the ranking breakdown of rec as of now.
func Compute(rec *models.ServerRecord, now time.Time) models.Score {
	q := Quality(rec)
	p := Popularity(rec)
	m := Maintenance(rec, now)
	t := Trust(rec, now)
	return models.Score{
		Quality:     round2(q),
		Popularity:  round2(p),
		Maintenance: round2(m),
		Trust:       round2(t),
		Composite:   round2(WeightQuality*q + WeightPopularity*p + WeightMaintenance*m + WeightTrust*t),
	}
}

// Quality rewards complete descriptors.
func Quality(rec *models.ServerRecord) float64 {
	var s float64
	desc := strings.TrimSpace(rec.Description)
	if desc != "" {
		s += 0.25
		if utf8.RuneCountInString(desc) >= 100 {
			s += 0.15
		}
	}
	if rec.Repository != nil && strings.TrimSpace(rec.Repository.URL) != "" {
		s += 0.20
	}
	if len(rec.Capabilities.Present()) > 0 {
		s += 0.20
	}
	if len(rec.Versions) > 0 {
		s += 0.20
	}
	return capOne(s)
}

// Popularity is log-scaled over stars, downloads and installs.
func Popularity(rec *models.ServerRecord) float64 {
	md := rec.Metadata
	s := 0.4*logScale(md.GitHubStars, 4) +
		0.3*logScale(md.DownloadCount, 5) +
		0.3*logScale(md.InstallCount, 4)
	return capOne(s)
}

// Maintenance rewards recent activity and release cadence.
func Maintenance(rec *models.ServerRecord, now time.Time) float64 {
	var s float64

	updated := rec.UpdatedAt
	if rec.Metadata.LastUpdated != nil {
		updated = *rec.Metadata.LastUpdated
	}
	switch d := daysSince(updated, now); {
	case d <= 30:
		s += 0.4
	case d <= 90:
		s += 0.3
	case d <= 180:
		s += 0.2
	case d <= 365:
		s += 0.1
	}

	switch n := len(rec.Versions); {
	case n >= 10:
		s += 0.3
	case n >= 5:
		s += 0.2
	case n >= 2:
		s += 0.1
	}

	if latest := rec.LatestVersion(); latest != nil {
		switch d := daysSince(latest.ReleaseDate, now); {
		case d <= 30:
			s += 0.3
		case d <= 90:
			s += 0.2
		case d <= 180:
			s += 0.1
		}
	}
	return capOne(s)
}

// Trust is the ranking trust factor.
func Trust(rec *models.ServerRecord, now time.Time) float64 {
	var s float64
	if rec.Metadata.Verified {
		s += 0.4
	}
	s += 0.3 * ratingConfidence(rec.Metadata)

	switch d := ageDays(rec.CreatedAt, now); {
	case d >= 365:
		s += 0.2
	case d >= 180:
		s += 0.15
	case d >= 90:
		s += 0.1
	case d >= 30:
		s += 0.05
	}

	s += sourceTrust[rec.Source]
	return capOne(s)
}

// TrustScore is the stored metadata.trust_score: equal weights over verified,
// stars, downloads, rating and age. Records without any download telemetry
// spread the downloads weight over the other four factors.
func TrustScore(rec *models.ServerRecord, now time.Time) float64 {
	md := rec.Metadata
	factors := []float64{
		boolScore(md.Verified),
		logScale(md.GitHubStars, 4),
		ratingConfidence(md),
		capOne(ageDays(rec.CreatedAt, now) / 365),
	}
	if md.DownloadCount > 0 || md.InstallCount > 0 {
		factors = append(factors, logScale(max(md.DownloadCount, md.InstallCount), 5))
	}

	var sum float64
	for _, f := range factors {
		sum += f
	}
	return round2(capOne(sum / float64(len(factors))))
}

func ratingConfidence(md models.Metadata) float64 {
	rating := math.Max(0, math.Min(md.Rating, 5))
	return (rating / 5) * math.Min(float64(md.RatingCount)/100, 1)
}

// logScale maps n onto [0,1] as log10(n+1)/decades.
func logScale(n int64, decades float64) float64 {
	if n <= 0 {
		return 0
	}
	return math.Min(math.Log10(float64(n)+1)/decades, 1)
}

func daysSince(t, now time.Time) float64 {
	if t.IsZero() {
		return math.Inf(1)
	}
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return float64(d) / float64(day)
}

// ageDays is like daysSince but treats an unset time as brand new.
func ageDays(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return daysSince(t, now)
}

func boolScore(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func capOne(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
