package loadgen

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/benchtrack/internal/adapters/publisher"
)

// commitNamespace keeps simulated commit ids stable across runs.
var commitNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("benchtrack/loadgen")) //nolint:gochecknoglobals // fixed namespace

const (
	baseMin   = 1e3
	baseRange = 1e8
	epoch     = 1_700_000_000_000 // ms
	runGap    = time.Hour
)

// series names the series a simulation touches.
type series struct {
	Suite string
	Name  string
}

// plan is the generated workload: runs grouped by suite in commit order and
// the series expected to regress on their newest run.
type plan struct {
	runs     [][]publisher.Run
	regress  []series
	runCount int
}

// generate builds the workload. The same config always yields the same plan.
func generate(cfg *Config) plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	commits := make([]publisher.Commit, cfg.Commits)
	for i := range commits {
		commits[i] = commitAt(i)
	}

	p := plan{runs: make([][]publisher.Run, cfg.Suites)}
	for s := range cfg.Suites {
		suite := fmt.Sprintf("Suite %02d", s)
		base := make([]float64, cfg.Benches)
		for b := range base {
			base[b] = baseMin + rng.Float64()*baseRange
		}

		runs := make([]publisher.Run, cfg.Commits)
		for i := range runs {
			benches := make([]publisher.Bench, cfg.Benches)
			for b := range benches {
				value := base[b] * (1 + cfg.Noise*(2*rng.Float64()-1))
				if b == 0 && i == cfg.Commits-1 && cfg.RegressFactor > 1 {
					value = base[b] * cfg.RegressFactor
				}
				benches[b] = publisher.Bench{
					Name:  fmt.Sprintf("Benchmark%03d", b),
					Value: value,
					Unit:  "ns/op",
					Extra: fmt.Sprintf("iterations: %d", 1+rng.IntN(1000)),
				}
			}
			runs[i] = publisher.Run{
				Suite: suite,
				Entry: publisher.Entry{
					Commit:  commits[i],
					Date:    epoch + int64(i)*runGap.Milliseconds(),
					Tool:    "go",
					Benches: benches,
				},
			}
		}
		p.runs[s] = runs
		p.runCount += len(runs)
		if cfg.RegressFactor > 1 && cfg.Benches > 0 && cfg.Commits > 0 {
			p.regress = append(p.regress, series{Suite: suite, Name: "Benchmark000"})
		}
	}
	return p
}

func commitAt(i int) publisher.Commit {
	id := commitID(i)
	who := publisher.Person{Email: "ci@example.com", Name: "CI", Username: "ci"}
	return publisher.Commit{
		Author:    who,
		Committer: who,
		Distinct:  true,
		ID:        id,
		Message:   fmt.Sprintf("simulated change %d", i),
		Timestamp: time.UnixMilli(epoch + int64(i)*runGap.Milliseconds()).UTC().Format(time.RFC3339),
		TreeID:    commitID(-i - 1),
		URL:       "https://example.com/commit/" + id,
	}
}

// commitID returns a 40 hex digit id.
func commitID(i int) string {
	u := uuid.NewSHA1(commitNamespace, []byte(fmt.Sprint(i)))
	hex := strings.ReplaceAll(u.String(), "-", "")
	return hex + hex[:8]
}
