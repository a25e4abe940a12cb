package store_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/store/model"
)

var _ = Describe("transactions", Ordered, func() {
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

	newJob := func(id uuid.UUID) model.Job {
		return model.NewJobFromApi(api.Job{
			Id:         id,
			InstanceId: "vm-tx",
			Status:     api.JobStatusPending,
		})
	}

	It("discards writes on rollback", func() {
		id := uuid.New()

		txCtx, err := s.NewTransactionContext(context.TODO())
		Expect(err).To(BeNil())

		_, err = s.Job().Create(txCtx, newJob(id))
		Expect(err).To(BeNil())

		_, err = store.Rollback(txCtx)
		Expect(err).To(BeNil())

		_, err = s.Job().Get(context.TODO(), id)
		Expect(errors.Is(err, store.ErrRecordNotFound)).To(BeTrue())
	})

	It("persists writes on commit", func() {
		id := uuid.New()

		txCtx, err := s.NewTransactionContext(context.TODO())
		Expect(err).To(BeNil())

		_, err = s.Job().Create(txCtx, newJob(id))
		Expect(err).To(BeNil())

		_, err = store.Commit(txCtx)
		Expect(err).To(BeNil())

		read, err := s.Job().Get(context.TODO(), id)
		Expect(err).To(BeNil())
		Expect(read.InstanceID).To(Equal("vm-tx"))
	})

	It("joins a surrounding transaction instead of nesting", func() {
		txCtx, err := s.NewTransactionContext(context.TODO())
		Expect(err).To(BeNil())

		sameCtx, err := s.NewTransactionContext(txCtx)
		Expect(err).To(BeNil())
		Expect(sameCtx).To(BeIdenticalTo(txCtx))

		_, err = store.Rollback(txCtx)
		Expect(err).To(BeNil())
	})
})
