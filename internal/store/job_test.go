package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
	"github.com/virtforensics/memory-inspector/internal/config"
	"github.com/virtforensics/memory-inspector/internal/store"
	"github.com/virtforensics/memory-inspector/internal/store/model"
)

var _ = Describe("job store", Ordered, func() {
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

	AfterEach(func() {
		Expect(s.Job().DeleteAll(context.TODO())).To(Succeed())
	})

	newJob := func(instanceID string, status api.JobStatus) api.Job {
		return api.Job{
			Id:         uuid.New(),
			InstanceId: instanceID,
			Status:     status,
			Tools:      []string{"strings", "binwalk"},
		}
	}

	It("round-trips a job with json payloads", func() {
		job := newJob("instance-a", api.JobStatusPending)
		job.Results = &api.ResultSet{
			Invocations: []api.ToolInvocation{
				{Tool: "strings", Status: api.ToolStatusCompleted},
			},
			Summary: api.Summary{ToolsRequested: 1, ToolsSucceeded: 1},
		}

		_, err := s.Job().Create(context.TODO(), model.NewJobFromApi(job))
		Expect(err).To(BeNil())

		record, err := s.Job().Get(context.TODO(), job.Id)
		Expect(err).To(BeNil())

		read := record.ToApiResource()
		Expect(read.Tools).To(Equal([]string{"strings", "binwalk"}))
		Expect(read.Results).ToNot(BeNil())
		Expect(read.Results.Summary.ToolsSucceeded).To(Equal(1))
		Expect(read.Results.Invocations).To(HaveLen(1))
	})

	It("updates status, progress and error", func() {
		job := newJob("instance-a", api.JobStatusPending)
		_, err := s.Job().Create(context.TODO(), model.NewJobFromApi(job))
		Expect(err).To(BeNil())

		job.Status = api.JobStatusFailed
		job.Progress = 20
		job.Error = "domain not found"
		now := time.Now()
		job.FinishedAt = &now

		updated, err := s.Job().Update(context.TODO(), model.NewJobFromApi(job))
		Expect(err).To(BeNil())
		Expect(updated.Status).To(Equal(string(api.JobStatusFailed)))
		Expect(updated.Progress).To(Equal(20))
		Expect(updated.Error).To(Equal("domain not found"))
		Expect(updated.FinishedAt).ToNot(BeNil())
	})

	It("filters by instance and status", func() {
		for _, job := range []api.Job{
			newJob("instance-a", api.JobStatusCompleted),
			newJob("instance-a", api.JobStatusAnalyzing),
			newJob("instance-b", api.JobStatusCompleted),
		} {
			_, err := s.Job().Create(context.TODO(), model.NewJobFromApi(job))
			Expect(err).To(BeNil())
		}

		jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByInstanceID("instance-a"))
		Expect(err).To(BeNil())
		Expect(jobs).To(HaveLen(2))

		jobs, err = s.Job().List(context.TODO(), store.NewJobQueryFilter().ByInstanceID("instance-a").ByStatus(api.JobStatusCompleted))
		Expect(err).To(BeNil())
		Expect(jobs).To(HaveLen(1))
	})

	It("selects only non-terminal jobs for recovery", func() {
		for _, job := range []api.Job{
			newJob("instance-a", api.JobStatusCompleted),
			newJob("instance-a", api.JobStatusFailed),
			newJob("instance-a", api.JobStatusCancelled),
			newJob("instance-a", api.JobStatusAcquiring),
			newJob("instance-a", api.JobStatusAnalyzing),
		} {
			_, err := s.Job().Create(context.TODO(), model.NewJobFromApi(job))
			Expect(err).To(BeNil())
		}

		jobs, err := s.Job().List(context.TODO(), store.NewJobQueryFilter().ByNonTerminalStatus())
		Expect(err).To(BeNil())
		Expect(jobs).To(HaveLen(2))
	})

	It("returns ErrRecordNotFound for a missing job", func() {
		_, err := s.Job().Get(context.TODO(), uuid.New())
		Expect(errors.Is(err, store.ErrRecordNotFound)).To(BeTrue())
	})

	It("deletes a job", func() {
		job := newJob("instance-a", api.JobStatusPending)
		_, err := s.Job().Create(context.TODO(), model.NewJobFromApi(job))
		Expect(err).To(BeNil())

		Expect(s.Job().Delete(context.TODO(), job.Id)).To(Succeed())

		_, err = s.Job().Get(context.TODO(), job.Id)
		Expect(errors.Is(err, store.ErrRecordNotFound)).To(BeTrue())
	})

	It("preloads the acquired image", func() {
		image, err := s.Image().Create(context.TODO(), model.Image{
			ID:         uuid.New(),
			InstanceID: "instance-a",
			Domain:     "vm-alpha",
			Path:       "/var/lib/inspector/dumps/vm-alpha.dump",
			Format:     "raw",
			SizeBytes:  2048,
			Sha256:     "abc123",
		})
		Expect(err).To(BeNil())

		job := newJob("instance-a", api.JobStatusCompleted)
		job.Image = &api.Image{Id: image.ID}
		_, err = s.Job().Create(context.TODO(), model.NewJobFromApi(job))
		Expect(err).To(BeNil())

		record, err := s.Job().Get(context.TODO(), job.Id)
		Expect(err).To(BeNil())

		read := record.ToApiResource()
		Expect(read.Image).ToNot(BeNil())
		Expect(read.Image.Domain).To(Equal("vm-alpha"))
	})
})
