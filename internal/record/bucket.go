package record

import (
	"fmt"
	"time"
)

// Bucket is a calendar grouping for upload time series.
type Bucket string

const (
	BucketDaily   Bucket = "daily"
	BucketWeekly  Bucket = "weekly"
	BucketMonthly Bucket = "monthly"
)

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(s); b {
	case BucketDaily, BucketWeekly, BucketMonthly:
		return b, nil
	}
	return "", fmt.Errorf("invalid bucket %q (daily, weekly, monthly)", s)
}

// Label returns the bucket label for t in UTC: 2006-01-02, 2006-W01 (ISO
// week) or 2006-01.
func (b Bucket) Label(t time.Time) string {
	t = t.UTC()
	switch b {
	case BucketWeekly:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	case BucketMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// BucketCount is the number of uploads in one bucket.
type BucketCount struct {
	Label   string `json:"label"`
	Uploads int64  `json:"uploads"`
}
