package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/speedcenter/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned (wrapped) when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	TrackedOnly bool
}

// RevisionFilter narrows ListRevisions. Zero values match everything.
type RevisionFilter struct {
	ProjectID  uint
	TaggedOnly bool
	Before     *time.Time
	BeforeOrAt *time.Time
	Limit      int
}

// ExecutableFilter narrows ListExecutables. Zero values match everything.
type ExecutableFilter struct {
	ProjectID   uint
	TrackedOnly bool
}

// ResultFilter narrows ListResults. Zero ids match everything.
type ResultFilter struct {
	RevisionID    uint
	ExecutableID  uint
	BenchmarkID   uint
	EnvironmentID uint
	Limit         int
}

// Store provides persistence for projects, revisions, executables,
// benchmarks, environments and results.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	GetProject(ctx context.Context, id uint) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error)
	SaveProject(ctx context.Context, project *Project) error
	GetOrCreateProject(ctx context.Context, name string) (*Project, error)

	GetRevision(ctx context.Context, id uint) (*Revision, error)
	GetRevisionByCommit(
		ctx context.Context, projectID uint, commitID string,
	) (*Revision, error)
	ListRevisions(ctx context.Context, filter RevisionFilter) ([]Revision, error)
	LatestRevision(ctx context.Context, projectID uint) (*Revision, error)
	GetOrCreateRevision(
		ctx context.Context, projectID uint, commitID string,
	) (*Revision, bool, error)
	CreateRevision(ctx context.Context, rev *Revision) (*Revision, bool, error)
	SaveRevision(ctx context.Context, rev *Revision) error

	GetExecutable(ctx context.Context, id uint) (*Executable, error)
	ListExecutables(
		ctx context.Context, filter ExecutableFilter,
	) ([]Executable, error)
	GetOrCreateExecutable(
		ctx context.Context, projectID uint, name, coptions string,
	) (*Executable, error)

	GetBenchmark(ctx context.Context, id uint) (*Benchmark, error)
	GetBenchmarkByName(ctx context.Context, name string) (*Benchmark, error)
	ListBenchmarks(ctx context.Context) ([]Benchmark, error)
	GetOrCreateBenchmark(ctx context.Context, bench *Benchmark) (*Benchmark, error)

	GetEnvironment(ctx context.Context, id uint) (*Environment, error)
	GetEnvironmentByName(ctx context.Context, name string) (*Environment, error)
	ListEnvironments(ctx context.Context) ([]Environment, error)
	UpsertEnvironment(ctx context.Context, env *Environment) error

	GetResult(
		ctx context.Context,
		revisionID, executableID, benchmarkID, environmentID uint,
	) (*Result, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]Result, error)
	UpsertResult(ctx context.Context, result *Result) error
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	// SQLite allows a single writer, and every ":memory:" connection is a
	// separate database.
	if s.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Project{},
		&Revision{},
		&Executable{},
		&Benchmark{},
		&Environment{},
		&Result{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// lookupError maps gorm's record-not-found to ErrNotFound.
func lookupError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}

	return fmt.Errorf("getting %s: %w", what, err)
}

// --- Projects ---

func (s *store) GetProject(ctx context.Context, id uint) (*Project, error) {
	var project Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("project %d", id), err)
	}

	return &project, nil
}

func (s *store) GetProjectByName(
	ctx context.Context, name string,
) (*Project, error) {
	var project Project
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&project).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("project %q", name), err)
	}

	return &project, nil
}

func (s *store) ListProjects(
	ctx context.Context, filter ProjectFilter,
) ([]Project, error) {
	q := s.db.WithContext(ctx).Order("id ASC")
	if filter.TrackedOnly {
		q = q.Where("track = ?", true)
	}

	var projects []Project
	if err := q.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	return projects, nil
}

func (s *store) SaveProject(ctx context.Context, project *Project) error {
	if err := s.db.WithContext(ctx).Save(project).Error; err != nil {
		return fmt.Errorf("saving project: %w", err)
	}

	return nil
}

// GetOrCreateProject returns the project with the given name, creating an
// untracked project without repository information when absent.
func (s *store) GetOrCreateProject(
	ctx context.Context, name string,
) (*Project, error) {
	project := Project{Name: name, RepoType: RepoTypeNone}
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		FirstOrCreate(&project).Error; err != nil {
		return nil, fmt.Errorf("upserting project %q: %w", name, err)
	}

	return &project, nil
}

// --- Revisions ---

func (s *store) GetRevision(ctx context.Context, id uint) (*Revision, error) {
	var rev Revision
	if err := s.db.WithContext(ctx).
		Preload("Project").
		First(&rev, id).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("revision %d", id), err)
	}

	return &rev, nil
}

func (s *store) GetRevisionByCommit(
	ctx context.Context, projectID uint, commitID string,
) (*Revision, error) {
	var rev Revision
	if err := s.db.WithContext(ctx).
		Preload("Project").
		Where("project_id = ? AND commit_id = ?", projectID, commitID).
		First(&rev).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("revision %q", commitID), err)
	}

	return &rev, nil
}

// ListRevisions returns revisions newest first.
func (s *store) ListRevisions(
	ctx context.Context, filter RevisionFilter,
) ([]Revision, error) {
	q := s.db.WithContext(ctx).
		Preload("Project").
		Order("date DESC").
		Order("id DESC")

	if filter.ProjectID != 0 {
		q = q.Where("project_id = ?", filter.ProjectID)
	}

	if filter.TaggedOnly {
		q = q.Where("tag <> ?", "")
	}

	if filter.Before != nil {
		q = q.Where("date < ?", *filter.Before)
	}

	if filter.BeforeOrAt != nil {
		q = q.Where("date <= ?", *filter.BeforeOrAt)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var revs []Revision
	if err := q.Find(&revs).Error; err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}

	return revs, nil
}

func (s *store) LatestRevision(
	ctx context.Context, projectID uint,
) (*Revision, error) {
	revs, err := s.ListRevisions(ctx, RevisionFilter{
		ProjectID: projectID,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}

	if len(revs) == 0 {
		return nil, fmt.Errorf(
			"latest revision of project %d: %w", projectID, ErrNotFound,
		)
	}

	return &revs[0], nil
}

// GetOrCreateRevision returns the revision keyed by project and commit id.
// The boolean reports whether it was created by this call.
func (s *store) GetOrCreateRevision(
	ctx context.Context, projectID uint, commitID string,
) (*Revision, bool, error) {
	existing, err := s.GetRevisionByCommit(ctx, projectID, commitID)
	if err == nil {
		return existing, false, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	return s.CreateRevision(ctx, &Revision{ProjectID: projectID, CommitID: commitID})
}

// CreateRevision inserts rev with all its details in one statement. When
// the project already has the commit, the stored revision is returned
// untouched and the boolean is false.
func (s *store) CreateRevision(
	ctx context.Context, rev *Revision,
) (*Revision, bool, error) {
	res := s.db.WithContext(ctx).
		Omit("Project").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "commit_id"}},
			DoNothing: true,
		}).
		Create(rev)
	if res.Error != nil {
		return nil, false, fmt.Errorf(
			"creating revision %q: %w", rev.CommitID, res.Error,
		)
	}

	if res.RowsAffected > 0 {
		return rev, true, nil
	}

	existing, err := s.GetRevisionByCommit(ctx, rev.ProjectID, rev.CommitID)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

func (s *store) SaveRevision(ctx context.Context, rev *Revision) error {
	if err := s.db.WithContext(ctx).
		Omit("Project").
		Save(rev).Error; err != nil {
		return fmt.Errorf("saving revision: %w", err)
	}

	return nil
}

// --- Executables ---

func (s *store) GetExecutable(
	ctx context.Context, id uint,
) (*Executable, error) {
	var exe Executable
	if err := s.db.WithContext(ctx).
		Preload("Project").
		First(&exe, id).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("executable %d", id), err)
	}

	return &exe, nil
}

func (s *store) ListExecutables(
	ctx context.Context, filter ExecutableFilter,
) ([]Executable, error) {
	q := s.db.WithContext(ctx).
		Preload("Project").
		Order("executables.id ASC")

	if filter.ProjectID != 0 {
		q = q.Where("executables.project_id = ?", filter.ProjectID)
	}

	if filter.TrackedOnly {
		q = q.Joins("JOIN projects ON projects.id = executables.project_id").
			Where("projects.track = ?", true)
	}

	var exes []Executable
	if err := q.Find(&exes).Error; err != nil {
		return nil, fmt.Errorf("listing executables: %w", err)
	}

	return exes, nil
}

func (s *store) GetOrCreateExecutable(
	ctx context.Context, projectID uint, name, coptions string,
) (*Executable, error) {
	exe := Executable{ProjectID: projectID, Name: name, Coptions: coptions}
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND name = ? AND coptions = ?",
			projectID, name, coptions).
		FirstOrCreate(&exe).Error; err != nil {
		return nil, fmt.Errorf("upserting executable %q: %w", name, err)
	}

	return &exe, nil
}

// --- Benchmarks ---

func (s *store) GetBenchmark(ctx context.Context, id uint) (*Benchmark, error) {
	var bench Benchmark
	if err := s.db.WithContext(ctx).First(&bench, id).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("benchmark %d", id), err)
	}

	return &bench, nil
}

func (s *store) GetBenchmarkByName(
	ctx context.Context, name string,
) (*Benchmark, error) {
	var bench Benchmark
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&bench).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("benchmark %q", name), err)
	}

	return &bench, nil
}

// ListBenchmarks returns all benchmarks ordered by name.
func (s *store) ListBenchmarks(ctx context.Context) ([]Benchmark, error) {
	var benches []Benchmark
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Order("id ASC").
		Find(&benches).Error; err != nil {
		return nil, fmt.Errorf("listing benchmarks: %w", err)
	}

	return benches, nil
}

// GetOrCreateBenchmark returns the benchmark named bench.Name, creating it
// from bench when absent. Existing benchmarks are not modified.
func (s *store) GetOrCreateBenchmark(
	ctx context.Context, bench *Benchmark,
) (*Benchmark, error) {
	out := *bench
	if out.Units == "" {
		out.Units = DefaultUnits
	}

	if err := s.db.WithContext(ctx).
		Where("name = ?", bench.Name).
		FirstOrCreate(&out).Error; err != nil {
		return nil, fmt.Errorf("upserting benchmark %q: %w", bench.Name, err)
	}

	return &out, nil
}

// --- Environments ---

func (s *store) GetEnvironment(
	ctx context.Context, id uint,
) (*Environment, error) {
	var env Environment
	if err := s.db.WithContext(ctx).First(&env, id).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("environment %d", id), err)
	}

	return &env, nil
}

func (s *store) GetEnvironmentByName(
	ctx context.Context, name string,
) (*Environment, error) {
	var env Environment
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&env).Error; err != nil {
		return nil, lookupError(fmt.Sprintf("environment %q", name), err)
	}

	return &env, nil
}

// ListEnvironments returns all environments in creation order.
func (s *store) ListEnvironments(ctx context.Context) ([]Environment, error) {
	var envs []Environment
	if err := s.db.WithContext(ctx).
		Order("id ASC").
		Find(&envs).Error; err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}

	return envs, nil
}

// UpsertEnvironment inserts or updates an environment keyed by name.
func (s *store) UpsertEnvironment(ctx context.Context, env *Environment) error {
	result := s.db.WithContext(ctx).
		Where("name = ?", env.Name).
		Assign(map[string]any{
			"cpu":    env.CPU,
			"memory": env.Memory,
			"os":     env.OS,
			"kernel": env.Kernel,
		}).
		FirstOrCreate(env)
	if result.Error != nil {
		return fmt.Errorf("upserting environment %q: %w", env.Name, result.Error)
	}

	return nil
}

// --- Results ---

func (s *store) GetResult(
	ctx context.Context,
	revisionID, executableID, benchmarkID, environmentID uint,
) (*Result, error) {
	var res Result
	if err := s.db.WithContext(ctx).
		Preload("Revision").
		Where("revision_id = ? AND executable_id = ? AND benchmark_id = ? AND environment_id = ?",
			revisionID, executableID, benchmarkID, environmentID).
		First(&res).Error; err != nil {
		return nil, lookupError("result", err)
	}

	return &res, nil
}

// ListResults returns results ordered by revision date, newest first.
func (s *store) ListResults(
	ctx context.Context, filter ResultFilter,
) ([]Result, error) {
	q := s.db.WithContext(ctx).
		Preload("Revision").
		Joins("JOIN revisions ON revisions.id = results.revision_id").
		Order("revisions.date DESC").
		Order("revisions.id DESC").
		Order("results.id ASC")

	if filter.RevisionID != 0 {
		q = q.Where("results.revision_id = ?", filter.RevisionID)
	}

	if filter.ExecutableID != 0 {
		q = q.Where("results.executable_id = ?", filter.ExecutableID)
	}

	if filter.BenchmarkID != 0 {
		q = q.Where("results.benchmark_id = ?", filter.BenchmarkID)
	}

	if filter.EnvironmentID != 0 {
		q = q.Where("results.environment_id = ?", filter.EnvironmentID)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var results []Result
	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}

	return results, nil
}

// UpsertResult inserts or updates a result keyed by revision, executable,
// benchmark and environment. Measured fields are always overwritten.
func (s *store) UpsertResult(ctx context.Context, res *Result) error {
	result := s.db.WithContext(ctx).
		Where("revision_id = ? AND executable_id = ? AND benchmark_id = ? AND environment_id = ?",
			res.RevisionID, res.ExecutableID, res.BenchmarkID, res.EnvironmentID).
		Assign(map[string]any{
			"value":   res.Value,
			"std_dev": res.StdDev,
			"val_min": res.ValMin,
			"val_max": res.ValMax,
			"date":    res.Date,
		}).
		Omit("Revision").
		FirstOrCreate(res)
	if result.Error != nil {
		return fmt.Errorf("upserting result: %w", result.Error)
	}

	return nil
}
