package domain

import "time"

// Parameter is a named configuration key within a project.
type Parameter struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ParameterValue stores the sealed value of a parameter in one environment.
type ParameterValue struct {
	ID            int64
	ProjectID     int64
	ParameterID   int64
	EnvironmentID int64
	Sealed        []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
