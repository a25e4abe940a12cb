package model

import (
	api "github.com/virtforensics/memory-inspector/api/v1alpha1"
)

func NewJobFromApi(job api.Job) Job {
	m := Job{
		ID:          job.Id,
		InstanceID:  job.InstanceId,
		Status:      string(job.Status),
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		ReportPath:  job.ReportPath,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
	}
	if len(job.Tools) > 0 {
		m.Tools = MakeJSONField(job.Tools)
	}
	if job.Results != nil {
		m.Results = MakeJSONField(*job.Results)
	}
	if job.Image != nil {
		id := job.Image.Id
		m.ImageID = &id
	}
	return m
}

func (j Job) ToApiResource() api.Job {
	job := api.Job{
		Id:          j.ID,
		InstanceId:  j.InstanceID,
		Status:      api.StringToJobStatus(j.Status),
		Progress:    j.Progress,
		CurrentStep: j.CurrentStep,
		Error:       j.Error,
		ReportPath:  j.ReportPath,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
	if j.Tools != nil {
		job.Tools = j.Tools.Data
	}
	if j.Results != nil {
		results := j.Results.Data
		job.Results = &results
	}
	if j.Image != nil {
		image := j.Image.ToApiResource()
		job.Image = &image
	}
	return job
}

func (jl JobList) ToApiResource() api.JobList {
	jobs := make(api.JobList, 0, len(jl))
	for _, j := range jl {
		jobs = append(jobs, j.ToApiResource())
	}
	return jobs
}

func NewImageFromApi(image api.Image) Image {
	return Image{
		ID:         image.Id,
		InstanceID: image.InstanceId,
		Domain:     image.Domain,
		Path:       image.Path,
		Format:     image.Format,
		SizeBytes:  image.SizeBytes,
		Sha256:     image.Sha256,
	}
}

func (i Image) ToApiResource() api.Image {
	return api.Image{
		Id:         i.ID,
		InstanceId: i.InstanceID,
		Domain:     i.Domain,
		Path:       i.Path,
		Format:     i.Format,
		SizeBytes:  i.SizeBytes,
		Sha256:     i.Sha256,
		CreatedAt:  i.CreatedAt,
	}
}

func (il ImageList) ToApiResource() api.ImageList {
	images := make(api.ImageList, 0, len(il))
	for _, i := range il {
		images = append(images, i.ToApiResource())
	}
	return images
}

func (s SymbolTable) ToApiResource() api.SymbolTable {
	return api.SymbolTable{
		KernelVersion: s.KernelVersion,
		Path:          s.Path,
		Strategy:      api.SymbolStrategy(s.Strategy),
		Degraded:      s.Degraded,
		CreatedAt:     s.CreatedAt,
	}
}
