package icm

import (
	"net/url"
	"strconv"
	"time"
)

const (
	// MaxPerPage is the largest page size the server accepts.
	MaxPerPage = 1000
	// DefaultPerPage applies when PageRequest.Per is not positive.
	DefaultPerPage = 50
)

// Project is the root of the resource hierarchy.
type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Environment belongs to exactly one project.
type Environment struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Parameter belongs to exactly one project.
type Parameter struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ParameterValue is the value of a parameter in one environment.
type ParameterValue struct {
	ID            int64     `json:"id"`
	ProjectID     int64     `json:"projectId"`
	ParameterID   int64     `json:"parameterId"`
	EnvironmentID int64     `json:"environmentId"`
	Value         string    `json:"value"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PaginationInfo summarises a list response.
type PaginationInfo struct {
	Page       int `json:"page"`
	Per        int `json:"per"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ProjectList is one page of projects.
type ProjectList struct {
	Projects   []Project      `json:"projects"`
	Pagination PaginationInfo `json:"pagination"`
}

// EnvironmentList is one page of environments.
type EnvironmentList struct {
	Environments []Environment  `json:"environments"`
	Pagination   PaginationInfo `json:"pagination"`
}

// ParameterList is one page of parameters.
type ParameterList struct {
	Parameters []Parameter    `json:"parameters"`
	Pagination PaginationInfo `json:"pagination"`
}

// PageRequest selects a page of a list call. The zero value is page 1 of 50.
type PageRequest struct {
	Page int
	Per  int
}

// Normalize applies defaults and clamps Per to MaxPerPage.
func (p PageRequest) Normalize() PageRequest {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Per <= 0 {
		p.Per = DefaultPerPage
	}
	if p.Per > MaxPerPage {
		p.Per = MaxPerPage
	}
	return p
}

func (p PageRequest) query() string {
	p = p.Normalize()
	values := url.Values{}
	values.Set("per", strconv.Itoa(p.Per))
	values.Set("page", strconv.Itoa(p.Page))
	return values.Encode()
}
