package symbols_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtforensics/memory-inspector/internal/forensics/symbols"
)

func TestSymbols(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Symbols Suite")
}

type fakeStrategy struct {
	name     string
	err      error
	degraded bool
	dir      string
	calls    int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Attempt(ctx context.Context, key symbols.Key) (*symbols.Artifact, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	path := filepath.Join(f.dir, key.KernelVersion+"-"+f.name+".json")
	if err := writeValidTable(path, f.degraded); err != nil {
		return nil, err
	}
	return &symbols.Artifact{
		KernelVersion: key.KernelVersion,
		Path:          path,
		Strategy:      f.name,
		Degraded:      f.degraded,
		CreatedAt:     time.Now(),
	}, nil
}

// writeValidTable produces a table that passes the structural check. The
// non-degraded shape carries enough entries to clear the floor.
func writeValidTable(path string, degraded bool) error {
	entries := map[string]map[string]string{}
	count := 200
	if degraded {
		count = 5
	}
	for i := 0; i < count; i++ {
		entries[fmt.Sprintf("sym_%d", i)] = map[string]string{"address": "0x0"}
	}
	table := map[string]any{
		"metadata":   map[string]any{"format": "6.2.0"},
		"base_types": map[string]any{"pointer": map[string]any{"size": 8}},
		"symbols":    entries,
	}
	if !degraded {
		// pad past the size floor
		table["user_types"] = map[string]any{"padding": make([]string, 512)}
	}
	data, err := json.Marshal(table)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var _ = Describe("symbol resolver", func() {
	var (
		dir string
		key symbols.Key
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		key = symbols.Key{KernelVersion: "5.15.0-91-generic"}
	})

	Context("waterfall", func() {
		It("returns the first strategy that succeeds", func() {
			s1 := &fakeStrategy{name: "generated", dir: dir}
			s2 := &fakeStrategy{name: "downloaded", dir: dir}
			r := symbols.NewResolverWithStrategies(nil, dir, s1, s2)

			artifact, err := r.Resolve(context.TODO(), key)
			Expect(err).To(BeNil())
			Expect(artifact.Strategy).To(Equal("generated"))
			Expect(s2.calls).To(Equal(0))
		})

		It("short-circuits after the first success", func() {
			s1 := &fakeStrategy{name: "generated", dir: dir, err: fmt.Errorf("no debug kernel")}
			s2 := &fakeStrategy{name: "downloaded", dir: dir}
			s3 := &fakeStrategy{name: "system_map", dir: dir}
			r := symbols.NewResolverWithStrategies(nil, dir, s1, s2, s3)

			artifact, err := r.Resolve(context.TODO(), key)
			Expect(err).To(BeNil())
			Expect(artifact.Strategy).To(Equal("downloaded"))
			Expect(s1.calls).To(Equal(1))
			Expect(s3.calls).To(Equal(0))
		})

		It("falls through to the degraded minimal table", func() {
			s1 := &fakeStrategy{name: "generated", dir: dir, err: fmt.Errorf("no debug kernel")}
			s2 := &fakeStrategy{name: "downloaded", dir: dir, err: fmt.Errorf("404")}
			s3 := &fakeStrategy{name: "minimal", dir: dir, degraded: true}
			r := symbols.NewResolverWithStrategies(nil, dir, s1, s2, s3)

			artifact, err := r.Resolve(context.TODO(), key)
			Expect(err).To(BeNil())
			Expect(artifact.Degraded).To(BeTrue())
		})

		It("reports unresolved when every strategy fails", func() {
			s1 := &fakeStrategy{name: "generated", dir: dir, err: fmt.Errorf("no debug kernel")}
			s2 := &fakeStrategy{name: "minimal", dir: dir, err: fmt.Errorf("disk full")}
			r := symbols.NewResolverWithStrategies(nil, dir, s1, s2)

			_, err := r.Resolve(context.TODO(), key)
			Expect(err).To(MatchError(symbols.ErrUnresolved))
		})

		It("stops when the context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.TODO())
			cancel()

			s1 := &fakeStrategy{name: "generated", dir: dir}
			r := symbols.NewResolverWithStrategies(nil, dir, s1)

			_, err := r.Resolve(ctx, key)
			Expect(err).To(MatchError(context.Canceled))
			Expect(s1.calls).To(Equal(0))
		})
	})
})
