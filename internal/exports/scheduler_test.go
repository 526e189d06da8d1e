package exports

import (
	"encoding/csv"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Cadence", func() {
	DescribeTable("due-ness",
		func(c Cadence, step int, t float64, due bool) {
			Expect(c.Due(step, t)).To(Equal(due))
		},
		Entry("every step", Cadence{}, 3, 0.3, true),
		Entry("every 10, off", Cadence{Every: 10}, 3, 0.3, false),
		Entry("every 10, on", Cadence{Every: 10}, 20, 2.0, true),
		Entry("last only", Cadence{LastOnly: true}, 1, 1.0, false),
		Entry("export time", Cadence{Times: []float64{1, 2.5}}, 7, 2.5, true),
		Entry("between export times", Cadence{Times: []float64{1, 2.5}}, 7, 2.4, false),
	)
})

var _ = Describe("Scheduler", func() {
	var (
		probe *linearProbe
		mem   *Memory
	)

	BeforeEach(func() {
		probe = &linearProbe{a: 1, b: 2}
		mem = NewMemory()
	})

	run := func(s *Scheduler, steps int) {
		for step := 1; step <= steps; step++ {
			probe.t = float64(step)
			Expect(s.Accepted(probe, step)).To(Succeed())
		}
		Expect(s.Finish(probe, steps, false)).To(Succeed())
	}

	It("records more rows every step than every 10 steps", func() {
		every1 := NewDerivedQuantities("every1", Cadence{Every: 1}, TotalVolume("solute", 0))
		every10 := NewDerivedQuantities("every10", Cadence{Every: 10}, TotalVolume("solute", 0))
		run(NewScheduler(mem, every1, every10), 25)

		Expect(every1.Table().Rows).To(HaveLen(25))
		Expect(every10.Table().Rows).To(HaveLen(2))
		Expect(len(mem.Rows["every1"])).To(BeNumerically(">", len(mem.Rows["every10"])))
	})

	It("writes last-step-only sinks once at the end", func() {
		last := NewDerivedQuantities("last", Cadence{LastOnly: true}, SurfaceFlux("solute", 2))
		snap := NewFieldSnapshot("profile", "solute", Cadence{LastOnly: true})
		s := NewScheduler(mem, last, snap)

		for step := 1; step <= 5; step++ {
			probe.t = float64(step)
			Expect(s.Accepted(probe, step)).To(Succeed())
			Expect(last.Table().Rows).To(BeEmpty())
		}
		Expect(s.Finish(probe, 5, false)).To(Succeed())

		Expect(last.Table().Rows).To(Equal([][]float64{{5, -2}}))
		Expect(mem.Snapshots["profile"]).To(HaveLen(1))
		Expect(snap.Count()).To(Equal(1))
	})

	It("records every sink once for a stationary run", func() {
		sparse := NewDerivedQuantities("sparse", Cadence{Every: 10}, TotalVolume("solute", 0))
		Expect(NewScheduler(mem, sparse).Finish(probe, 1, true)).To(Succeed())
		Expect(sparse.Table().Rows).To(HaveLen(1))
	})

	It("collects export times as stops", func() {
		s := NewScheduler(mem,
			NewFieldSnapshot("a", "solute", Cadence{Times: []float64{3, 1}}),
			NewFieldSnapshot("b", "solute", Cadence{Times: []float64{2}}),
		)
		Expect(s.Stops()).To(Equal([]float64{1, 2, 3}))
	})

	It("surfaces probe errors with the sink name", func() {
		bad := NewFieldSnapshot("bad", "retention", Cadence{})
		err := NewScheduler(mem, bad).Accepted(probe, 1)
		Expect(err).To(MatchError(ContainSubstring("export bad")))
	})

	It("writes CSV files into a folder", func() {
		dir := GinkgoT().TempDir()
		folder, err := NewFolder(dir)
		Expect(err).NotTo(HaveOccurred())

		dq := NewDerivedQuantities("derived_quantities", Cadence{}, TotalVolume("solute", 0), SurfaceFlux("solute", 1))
		snap := NewFieldSnapshot("solute_profile", "solute", Cadence{Every: 2})
		run(NewScheduler(folder, dq, snap), 4)

		f, err := os.Open(filepath.Join(dir, "derived_quantities.csv"))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(5))
		Expect(records[0]).To(Equal([]string{"t(s)", "Total solute volume 0", "Flux solute surface 1"}))
		Expect(records[4]).To(Equal([]string{"4", "2", "2"}))

		g, err := os.Open(filepath.Join(dir, "solute_profile.csv"))
		Expect(err).NotTo(HaveOccurred())
		defer g.Close()
		rows, err := csv.NewReader(g).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0]).To(HaveLen(6))
	})

	It("flushes accepted rows when a last-step sink fails", func() {
		dir := GinkgoT().TempDir()
		folder, err := NewFolder(dir)
		Expect(err).NotTo(HaveOccurred())

		dq := NewDerivedQuantities("dq", Cadence{}, TotalVolume("solute", 0))
		bad := NewFieldSnapshot("bad", "no_such_field", Cadence{LastOnly: true})
		s := NewScheduler(folder, dq, bad)
		for step := 1; step <= 3; step++ {
			probe.t = float64(step)
			Expect(s.Accepted(probe, step)).To(Succeed())
		}
		Expect(s.Finish(probe, 3, false)).To(MatchError(ContainSubstring("export bad")))

		f, err := os.Open(filepath.Join(dir, "dq.csv"))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(4))
		Expect(folder.files).To(BeEmpty())
	})

	It("renders profile plots to PNG", func() {
		dir := GinkgoT().TempDir()
		pp := NewProfilePlot("solute", "solute", dir, Cadence{Every: 2})
		run(NewScheduler(mem, pp), 4)

		info, err := os.Stat(pp.Path())
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Size()).To(BeNumerically(">", 0))
	})
})
