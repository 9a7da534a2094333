package reputation

import (
	"fmt"
	"math"
	"strings"
)

// RecentWindowDays is the trailing window behind every "recent" counter.
const RecentWindowDays = 30

// Input is the counter bundle for one user.
type Input struct {
	RecentPosts             int `json:"recent_posts"`
	TotalPosts              int `json:"total_posts"`
	RecentRepostsGiven      int `json:"recent_reposts_given"`
	TotalRepostsGiven       int `json:"total_reposts_given"`
	RecentRepostsReceived   int `json:"recent_reposts_received"`
	TotalRepostsReceived    int `json:"total_reposts_received"`
	RecentFavoritesGiven    int `json:"recent_favorites_given"`
	TotalFavoritesGiven     int `json:"total_favorites_given"`
	RecentFavoritesReceived int `json:"recent_favorites_received"`
	FavoritesReceived       int `json:"favorites_received"`
	Followers               int `json:"followers"`
	AccountAgeDays          int `json:"account_age_days"`
}

// Result is a computed reputation.
type Result struct {
	Score  int    `json:"score"`
	Bucket Bucket `json:"bucket"`
}

// Compute scores in. Square roots and the logarithm flatten raw volume while
// the linear recent terms reward current activity. Negative counters count
// as zero and the account age is floored at one day.
func Compute(in Input) Result {
	age := math.Max(float64(nonNegative(in.AccountAgeDays)), 1)

	raw := float64(nonNegative(in.RecentPosts))*10 +
		sqrt(in.TotalPosts)*15 +
		float64(nonNegative(in.RecentRepostsGiven))*5 +
		sqrt(in.TotalRepostsGiven)*7 +
		sqrt(in.RecentFavoritesReceived)*8 +
		sqrt(in.FavoritesReceived)*5 +
		sqrt(in.Followers)*10 +
		math.Log(age+1)*5

	score := int(math.Floor(raw))
	return Result{Score: score, Bucket: BucketFor(score)}
}

func sqrt(n int) float64 {
	return math.Sqrt(float64(nonNegative(n)))
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Bucket is the ordinal display tier of a score.
type Bucket int

const (
	BucketGray Bucket = iota
	BucketGreen
	BucketBlue
	BucketPurple
	BucketGold
)

// bucketFloors holds the lowest score of each bucket after Gray.
var bucketFloors = [...]struct {
	floor  int
	bucket Bucket
}{
	{1000, BucketGold},
	{500, BucketPurple},
	{250, BucketBlue},
	{100, BucketGreen},
}

var bucketNames = map[Bucket]string{
	BucketGray:   "gray",
	BucketGreen:  "green",
	BucketBlue:   "blue",
	BucketPurple: "purple",
	BucketGold:   "gold",
}

// BucketFor maps any score to exactly one bucket. Gold is unbounded.
func BucketFor(score int) Bucket {
	for _, b := range bucketFloors {
		if score >= b.floor {
			return b.bucket
		}
	}
	return BucketGray
}

func (b Bucket) String() string {
	if name, ok := bucketNames[b]; ok {
		return name
	}
	return fmt.Sprintf("bucket(%d)", int(b))
}

// MarshalText renders the bucket name.
func (b Bucket) MarshalText() ([]byte, error) {
	if _, ok := bucketNames[b]; !ok {
		return nil, fmt.Errorf("unknown bucket %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText parses a bucket name.
func (b *Bucket) UnmarshalText(text []byte) error {
	parsed, err := ParseBucket(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBucket parses a bucket name case-insensitively.
func ParseBucket(name string) (Bucket, error) {
	for b, n := range bucketNames {
		if strings.EqualFold(n, name) {
			return b, nil
		}
	}
	return BucketGray, fmt.Errorf("unknown bucket %q", name)
}

// ShouldPersist reports whether current has drifted from previous by more
// than threshold.
func ShouldPersist(previous, current, threshold int) bool {
	diff := current - previous
	if diff < 0 {
		diff = -diff
	}
	return diff > threshold
}
