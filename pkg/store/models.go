package store

import (
	"time"
)

// Repository types for Project.RepoType.
const (
	RepoTypeNone   = "none"
	RepoTypeGitHub = "github"
)

// DefaultUnits is the unit assigned to benchmarks created without one.
const DefaultUnits = "seconds"

// Project is a tracked code base.
type Project struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"uniqueIndex;not null" json:"name"`
	Track    bool   `json:"track"`
	RepoType string `json:"repo_type"`
	RepoPath string `json:"repo_path"`
	RepoUser string `json:"-"`
	RepoPass string `json:"-"`
}

// Revision is a commit of a project.
type Revision struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_revisions_project_commit" json:"project_id"`
	CommitID  string    `gorm:"not null;uniqueIndex:idx_revisions_project_commit" json:"commitid"`
	Tag       string    `gorm:"index" json:"tag"`
	Date      time.Time `gorm:"index" json:"date"`
	Author    string    `json:"author"`
	Message   string    `gorm:"type:text" json:"message"`
	Project   *Project  `gorm:"foreignKey:ProjectID" json:"-"`
}

// Tagged reports whether the revision is a named release.
func (r *Revision) Tagged() bool {
	return r.Tag != ""
}

// Label returns the tag of a tagged revision, else its commit id.
func (r *Revision) Label() string {
	if r.Tagged() {
		return r.Tag
	}

	return r.CommitID
}

// Executable is a build of a project with a set of compile options.
type Executable struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	ProjectID uint     `gorm:"not null;uniqueIndex:idx_executables_project_name_coptions" json:"project_id"`
	Name      string   `gorm:"not null;uniqueIndex:idx_executables_project_name_coptions" json:"name"`
	Coptions  string   `gorm:"not null;uniqueIndex:idx_executables_project_name_coptions" json:"coptions"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"-"`
}

// String returns the display name: the executable name, followed by its
// compile options unless they denote an unoptioned build.
func (e *Executable) String() string {
	if HasOptions(e.Coptions) {
		return e.Name + " " + e.Coptions
	}

	return e.Name
}

// HasOptions reports whether coptions names real compile options rather
// than one of the "no options" markers.
func HasOptions(coptions string) bool {
	return coptions != "" && coptions != "default" && coptions != "none"
}

// Benchmark is a named measurement.
type Benchmark struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"uniqueIndex;not null" json:"name"`
	Units        string `gorm:"not null;default:seconds" json:"units"`
	LessIsBetter bool   `gorm:"not null" json:"lessisbetter"`
	Description  string `json:"description"`
}

// Environment is the machine results were measured on.
type Environment struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	OS     string `json:"os"`
	Kernel string `json:"kernel"`
}

// Result is a single measured value, unique per revision, executable,
// benchmark and environment.
type Result struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RevisionID    uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"revision_id"`
	ExecutableID  uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"executable_id"`
	BenchmarkID   uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"benchmark_id"`
	EnvironmentID uint      `gorm:"not null;uniqueIndex:idx_results_key" json:"environment_id"`
	Value         float64   `gorm:"not null" json:"value"`
	StdDev        *float64  `json:"std_dev"`
	ValMin        *float64  `json:"val_min"`
	ValMax        *float64  `json:"val_max"`
	Date          time.Time `json:"date"`

	Revision *Revision `gorm:"foreignKey:RevisionID" json:"-"`
}
