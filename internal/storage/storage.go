package storage

import (
	"time"
)

// JobStatus is the lifecycle status of a clustering job
type JobStatus string

const (
	StatusFailed     JobStatus = "FAILED"
	StatusWaitingNLP JobStatus = "WAITING NLP"
	StatusClustering JobStatus = "CLUSTERING"
	StatusFinished   JobStatus = "FINISHED"
)

// Terminal reports whether a job in this status will not change anymore
func (s JobStatus) Terminal() bool {
	return s == StatusFailed || s == StatusFinished
}

// Record is a thesis proposal with one embedding per text field
type Record struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	ExpectedResult string `json:"expected_result"`
	ProblemSolve   string `json:"problem_solve"`
	StudentName    string `json:"student_name,omitempty"`
	StudentID      string `json:"student_id,omitempty"`

	// Vectors holds one embedding per field in title, category, expected
	// result, problem solve order. Missing until the embedding job ran.
	Vectors   [][]float32 `json:"vectors,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Ready reports whether all fields of the record have been embedded
func (r *Record) Ready(fields int) bool {
	if r == nil || len(r.Vectors) != fields {
		return false
	}
	for _, v := range r.Vectors {
		if len(v) == 0 {
			return false
		}
	}
	return true
}

// JobConfig holds the user supplied parameters of a clustering job
type JobConfig struct {
	// Order ranks the record fields by importance, most important first
	Order              []int `json:"order"`
	NumberOfClusters   int   `json:"number_of_clusters"`
	MaxItemsPerCluster int   `json:"max_item_each_cluster"`
}

// DefaultJobConfig returns the defaults applied to new jobs
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Order:              []int{0, 1, 2, 3},
		NumberOfClusters:   10,
		MaxItemsPerCluster: 10,
	}
}

// Job is a request to cluster a set of records
type Job struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	RecordIDs       []string  `json:"record_ids"`
	Config          JobConfig `json:"config"`
	ReadyForCluster bool      `json:"ready_for_cluster"`
	Status          JobStatus `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Result is the latest partition of a job, replaced on every iteration
type Result struct {
	JobID       string     `json:"job_id"`
	Iteration   int        `json:"iteration"`
	Groups      [][]string `json:"groups"`
	Unclustered []string   `json:"unclustered"`
	Loss        []float64  `json:"loss"`
	State       string     `json:"state"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
