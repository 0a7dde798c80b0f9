// Package job implements the Job entity: a versioned Spark application
// definition (artifact, entrypoint, args, Spark config) that Runs are
// submitted against.
package job

import (
	"time"

	"github.com/google/uuid"
)

// Row is the raw database representation of a job.
type Row struct {
	ID                uuid.UUID
	EnvironmentID     uuid.UUID
	Name              string
	ArtifactURI       string
	ArtifactDigest    string
	Entrypoint        string
	Args              []string
	SparkConf         map[string]string
	RetryMaxAttempts  int
	TimeoutSeconds    int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Response is the JSON-facing representation of a job.
type Response struct {
	ID               uuid.UUID         `json:"id"`
	EnvironmentID    uuid.UUID         `json:"environment_id"`
	Name             string            `json:"name"`
	ArtifactURI      string            `json:"artifact_uri"`
	ArtifactDigest   string            `json:"artifact_digest"`
	Entrypoint       string            `json:"entrypoint"`
	Args             []string          `json:"args"`
	SparkConf        map[string]string `json:"spark_conf"`
	RetryMaxAttempts int               `json:"retry_max_attempts"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (r Row) ToResponse() Response {
	args := r.Args
	if args == nil {
		args = []string{}
	}
	conf := r.SparkConf
	if conf == nil {
		conf = map[string]string{}
	}
	return Response{
		ID:               r.ID,
		EnvironmentID:    r.EnvironmentID,
		Name:             r.Name,
		ArtifactURI:      r.ArtifactURI,
		ArtifactDigest:   r.ArtifactDigest,
		Entrypoint:       r.Entrypoint,
		Args:             args,
		SparkConf:        conf,
		RetryMaxAttempts: r.RetryMaxAttempts,
		TimeoutSeconds:   r.TimeoutSeconds,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// CreateRequest is the body of POST /v1/jobs.
type CreateRequest struct {
	EnvironmentID    uuid.UUID         `json:"environment_id" validate:"required"`
	Name             string            `json:"name" validate:"required,min=1,max=255"`
	ArtifactURI      string            `json:"artifact_uri" validate:"required,min=3,max=2048"`
	ArtifactDigest   string            `json:"artifact_digest" validate:"required,min=6,max=255"`
	Entrypoint       string            `json:"entrypoint" validate:"required,min=1,max=1024"`
	Args             []string          `json:"args"`
	SparkConf        map[string]string `json:"spark_conf"`
	RetryMaxAttempts int               `json:"retry_max_attempts" validate:"omitempty,min=1,max=10"`
	TimeoutSeconds   int               `json:"timeout_seconds" validate:"omitempty,min=60,max=172800"`
}

func (req CreateRequest) normalized() CreateRequest {
	if req.Args == nil {
		req.Args = []string{}
	}
	if req.SparkConf == nil {
		req.SparkConf = map[string]string{}
	}
	if req.RetryMaxAttempts == 0 {
		req.RetryMaxAttempts = 1
	}
	if req.TimeoutSeconds == 0 {
		req.TimeoutSeconds = 7200
	}
	return req
}
