package store_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/store/model"
)

var _ = Describe("symbol store", Ordered, func() {
	var s store.Store

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Type = "sqlite"
		cfg.Database.Name = ":memory:"

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	It("inserts a table on first upsert", func() {
		table, err := s.Symbol().Upsert(context.TODO(), model.SymbolTable{
			KernelVersion: "5.15.0-91-generic",
			Path:          "/var/lib/inspector/symbols/5.15.0-91-generic.json",
			Strategy:      "downloaded",
		})
		Expect(err).To(BeNil())
		Expect(table.Strategy).To(Equal("downloaded"))

		read, err := s.Symbol().Get(context.TODO(), "5.15.0-91-generic")
		Expect(err).To(BeNil())
		Expect(read.Path).To(Equal("/var/lib/inspector/symbols/5.15.0-91-generic.json"))
		Expect(read.Degraded).To(BeFalse())
	})

	It("replaces the entry when the same kernel resolves again", func() {
		_, err := s.Symbol().Upsert(context.TODO(), model.SymbolTable{
			KernelVersion: "5.15.0-91-generic",
			Path:          "/var/lib/inspector/symbols/5.15.0-91-generic.json",
			Strategy:      "minimal",
			Degraded:      true,
		})
		Expect(err).To(BeNil())

		read, err := s.Symbol().Get(context.TODO(), "5.15.0-91-generic")
		Expect(err).To(BeNil())
		Expect(read.Strategy).To(Equal("minimal"))
		Expect(read.Degraded).To(BeTrue())

		tables, err := s.Symbol().List(context.TODO())
		Expect(err).To(BeNil())
		Expect(tables).To(HaveLen(1))
	})

	It("returns ErrRecordNotFound for an unknown kernel", func() {
		_, err := s.Symbol().Get(context.TODO(), "6.1.0-unknown")
		Expect(errors.Is(err, store.ErrRecordNotFound)).To(BeTrue())
	})
})
