package foreach_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nibzard/fanout/internal/foreach"
	"github.com/nibzard/fanout/internal/invoke"
	"github.com/nibzard/fanout/internal/mapper"
	"github.com/nibzard/fanout/internal/parallel"
	"github.com/nibzard/fanout/internal/source"
)

// recorder is an invoker that tracks concurrency and the bindings each call saw.
type recorder struct {
	mu       sync.Mutex
	current  int
	max      int
	calls    []map[string]string
	delay    time.Duration
	failWhen func(scope *invoke.Scope) error
}

func (r *recorder) Invoke(ctx context.Context, target string, scope *invoke.Scope) error {
	r.mu.Lock()
	r.current++
	if r.current > r.max {
		r.max = r.current
	}
	r.calls = append(r.calls, scope.Properties())
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.current--
		r.mu.Unlock()
	}()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.failWhen != nil {
		return r.failWhen(scope)
	}
	return nil
}

func (r *recorder) values(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		out = append(out, c[name])
	}
	sort.Strings(out)
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func writeFiles(root string, names ...string) {
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(name), 0o644)).To(Succeed())
	}
}

var _ = Describe("Task", func() {
	var (
		ctx context.Context
		rec *recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = &recorder{}
	})

	Context("with a list", func() {
		It("runs one unit per entry within the thread bound", func() {
			rec.delay = 20 * time.Millisecond
			var buf bytes.Buffer
			task := &foreach.Task{
				List:        "a,b,c",
				Target:      "t",
				Param:       "p",
				ThreadCount: 2,
				Invoker:     rec,
				Logger:      log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel}),
			}

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values("p")).To(Equal([]string{"a", "b", "c"}))
			Expect(rec.max).To(BeNumerically("<=", 2))
			Expect(summary.Result.Peak).To(BeNumerically("<=", 2))
			Expect(summary.Entries).To(Equal(3))
			Expect(summary.Lines()).To(Equal([]string{"Processed 3 entries in list"}))
			Expect(buf.String()).To(ContainSubstring("Processed 3 entries in list"))
		})

		It("uses a custom delimiter and keeps empty tokens", func() {
			task := &foreach.Task{
				List:      "x; ;y",
				Delimiter: ";",
				Target:    "t",
				Param:     "p",
				Invoker:   rec,
			}

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values("p")).To(Equal([]string{"", "x", "y"}))
			Expect(summary.Entries).To(Equal(3))
		})

		It("uses the singular noun for a single entry", func() {
			task := &foreach.Task{List: "only", Target: "t", Param: "p", Invoker: rec}

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Lines()).To(Equal([]string{"Processed 1 entry in list"}))
		})

		It("uses the singular noun when every entry was skipped", func() {
			task := &foreach.Task{List: "a,b", Target: "t", Param: "p", Invoker: rec}
			Expect(task.SetMapper(mapper.Func(func(string) []string { return nil }))).To(Succeed())

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values("p")).To(BeEmpty())
			Expect(summary.Lines()).To(Equal([]string{"Processed 0 entry in list"}))
		})

		It("skips items the mapper rejects", func() {
			task := &foreach.Task{List: "keep1,skip,keep2", Target: "t", Param: "p", Invoker: rec}
			Expect(task.SetMapper(mapper.Func(func(v string) []string {
				if v == "skip" {
					return nil
				}
				return []string{v + ".out"}
			}))).To(Succeed())

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values("p")).To(Equal([]string{"keep1.out", "keep2.out"}))
			Expect(summary.Entries).To(Equal(2))
			Expect(summary.Skipped).To(Equal(1))
		})

		It("gives every unit its own copy of the parent scope", func() {
			parent := invoke.NewScopeFromMap(map[string]string{"shared": "yes"})
			task := &foreach.Task{
				List:    "a,b",
				Target:  "t",
				Param:   "p",
				Scope:   parent,
				Invoker: rec,
			}

			_, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values("shared")).To(Equal([]string{"yes", "yes"}))
			_, leaked := parent.Get("p")
			Expect(leaked).To(BeFalse())
		})

		It("produces the same bindings when the configuration is run again", func() {
			run := func() []string {
				r := &recorder{}
				task := &foreach.Task{List: "a,b,c", Target: "t", Param: "p", ThreadCount: 3, Invoker: r}
				_, err := task.Run(ctx)
				Expect(err).NotTo(HaveOccurred())
				return r.values("p")
			}
			Expect(run()).To(Equal(run()))
		})
	})

	Context("with file sources", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		It("binds relative and absolute paths for a file set", func() {
			writeFiles(dir, "x.txt", "sub/y.txt")
			task := &foreach.Task{Target: "t", Param: "rel", AbsParam: "abs", Invoker: rec}
			task.AddFileSet(source.NewFileSet(dir, []string{"**/*.txt"}, nil))

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())

			rel := filepath.Join("sub", "y.txt")
			Expect(rec.values("rel")).To(ConsistOf("x.txt", rel))
			abs, err := filepath.Abs(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.values("abs")).To(ConsistOf(
				filepath.Join(abs, "x.txt"),
				filepath.Join(abs, rel),
			))
			Expect(summary.Files).To(Equal(2))
			Expect(summary.Lines()).To(Equal([]string{"Processed 0 directories and 2 files"}))
		})

		It("enumerates file sources again when the same task runs twice", func() {
			writeFiles(dir, "x.txt", "sub/y.txt")
			task := &foreach.Task{Target: "t", Param: "rel", Invoker: rec}
			task.AddFileList(source.NewFileList(dir, "listed.txt"))
			task.AddFileSet(source.NewFileSet(dir, []string{"**/*.txt"}, nil))

			first, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			firstValues := rec.values("rel")

			again := &recorder{}
			task.Invoker = again
			second, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.values("rel")).To(ConsistOf(firstValues))
			Expect(second.Files).To(Equal(first.Files))
			Expect(second.Files).To(Equal(3))
		})

		It("takes the absolute path from the value before mapping", func() {
			writeFiles(dir, "sub/y.txt")
			task := &foreach.Task{Target: "t", Param: "rel", AbsParam: "abs", Invoker: rec}
			task.AddFileSet(source.NewFileSet(dir, []string{"**/*.txt"}, nil))
			Expect(task.SetMapper(mapper.Flatten{})).To(Succeed())

			_, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			abs, _ := filepath.Abs(dir)
			Expect(rec.values("rel")).To(Equal([]string{"y.txt"}))
			Expect(rec.values("abs")).To(Equal([]string{filepath.Join(abs, "sub", "y.txt")}))
		})

		It("sums counts across every source", func() {
			writeFiles(dir, "a.txt", "b.txt", "d/c.txt")
			task := &foreach.Task{List: "e1,e2", Target: "t", Param: "p", Invoker: rec}
			task.AddFileList(source.NewFileList(dir, "a.txt", "b.txt"))
			task.AddFileSet(source.NewFileSet(dir, []string{"d/*.txt"}, nil))

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Entries).To(Equal(2))
			Expect(summary.Files).To(Equal(3))
			Expect(summary.Dirs).To(Equal(0))
			Expect(summary.Dispatched).To(Equal(5))
			Expect(rec.count()).To(Equal(5))
			Expect(summary.Lines()).To(Equal([]string{
				"Processed 2 entries in list",
				"Processed 0 directories and 3 files",
			}))
		})

		It("counts directories the file set yields", func() {
			writeFiles(dir, "d/c.txt")
			task := &foreach.Task{Target: "t", Param: "p", Invoker: rec}
			task.AddFileSet(source.NewFileSet(dir, nil, nil))

			summary, err := task.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Files).To(Equal(1))
			Expect(summary.Dirs).To(Equal(1))
			Expect(rec.values("p")).To(ConsistOf("d", filepath.Join("d", "c.txt")))
		})

		It("fails before any unit starts when a source cannot be enumerated", func() {
			task := &foreach.Task{List: "a", Target: "t", Param: "p", Invoker: rec}
			task.AddFileSet(source.NewFileSet(filepath.Join(dir, "missing"), nil, nil))

			summary, err := task.Run(ctx)
			Expect(summary).To(BeNil())
			var enumErr *foreach.EnumerationError
			Expect(errors.As(err, &enumErr)).To(BeTrue())
			Expect(enumErr.Source).To(ContainSubstring("missing"))
			Expect(rec.count()).To(BeZero())
		})
	})

	Context("when units fail", func() {
		It("runs every other unit and aggregates the failures", func() {
			boom := errors.New("boom")
			rec.failWhen = func(scope *invoke.Scope) error {
				if v, _ := scope.Get("p"); v == "b" {
					return boom
				}
				return nil
			}
			task := &foreach.Task{List: "a,b,c,d", Target: "t", Param: "p", ThreadCount: 2, Invoker: rec}

			summary, err := task.Run(ctx)
			Expect(err).To(MatchError(foreach.ErrUnitsFailed))
			Expect(err).To(MatchError(boom))
			Expect(err.Error()).To(ContainSubstring("1 of 4 units failed"))
			Expect(rec.count()).To(Equal(4))
			Expect(summary.Failed()).To(BeTrue())
			Expect(summary.Result.Succeeded()).To(Equal(3))

			var unitErr *parallel.UnitError
			Expect(errors.As(err, &unitErr)).To(BeTrue())
			Expect(unitErr.Unit.ParamValue).To(Equal("b"))
		})

		It("reports units that never started after cancellation", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			task := &foreach.Task{List: "a,b", Target: "t", Param: "p", Invoker: rec}

			summary, err := task.Run(cctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(summary.Result.Outcomes).To(HaveLen(2))
			Expect(rec.count()).To(BeZero())
		})

		It("fails units that exceed the unit timeout", func() {
			blocking := invoke.InvokerFunc(func(ctx context.Context, _ string, _ *invoke.Scope) error {
				<-ctx.Done()
				return ctx.Err()
			})
			task := &foreach.Task{List: "a", Target: "t", Param: "p", UnitTimeout: 10 * time.Millisecond, Invoker: blocking}

			_, err := task.Run(ctx)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(err.Error()).To(ContainSubstring("timed out after"))
		})
	})

	DescribeTable("configuration errors",
		func(build func() *foreach.Task, want error) {
			task := build()
			_, err := task.Run(context.Background())
			var cfgErr *foreach.ConfigError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(err).To(MatchError(want))
		},
		Entry("no items", func() *foreach.Task {
			return &foreach.Task{Target: "t", Param: "p", Invoker: &recorder{}}
		}, foreach.ErrNoItems),
		Entry("blank list", func() *foreach.Task {
			return &foreach.Task{List: "  ", Target: "t", Param: "p", Invoker: &recorder{}}
		}, foreach.ErrNoItems),
		Entry("missing param", func() *foreach.Task {
			return &foreach.Task{List: "a", Target: "t", Invoker: &recorder{}}
		}, foreach.ErrParamRequired),
		Entry("missing target", func() *foreach.Task {
			return &foreach.Task{List: "a", Param: "p", Invoker: &recorder{}}
		}, foreach.ErrTargetRequired),
		Entry("missing invoker", func() *foreach.Task {
			return &foreach.Task{List: "a", Target: "t", Param: "p"}
		}, foreach.ErrNoInvoker),
	)

	It("rejects a second mapper", func() {
		task := &foreach.Task{}
		Expect(task.SetMapper(mapper.Identity{})).To(Succeed())
		err := task.SetMapper(mapper.Flatten{})
		Expect(err).To(MatchError(foreach.ErrMultipleMappers))
	})

	It("rejects a negative thread count", func() {
		task := &foreach.Task{List: "a", Target: "t", Param: "p", ThreadCount: -1, Invoker: &recorder{}}
		var cfgErr *foreach.ConfigError
		Expect(errors.As(task.Validate(), &cfgErr)).To(BeTrue())
		Expect(cfgErr.Field).To(Equal("threadCount"))
	})
})
