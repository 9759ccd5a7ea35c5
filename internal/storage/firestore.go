package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/good-yellow-bee/ivvboard/internal/models"
)

const (
	colUsers    = "users"
	colProjects = "projects"
	colReports  = "reports"
	colTokens   = "refresh_tokens"
)

// FirestoreConfig selects the Firebase project and service account.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreStorage implements Storage on Cloud Firestore. Reports live in a
// subcollection of their project: projects/{projectId}/reports/{reportId}.
type FirestoreStorage struct {
	cfg    FirestoreConfig
	client *firestore.Client

	users    *fsUserRepo
	projects *fsProjectRepo
	reports  *fsReportRepo
	tokens   *fsTokenRepo
}

// NewFirestoreStorage creates a new Firestore storage.
func NewFirestoreStorage(cfg FirestoreConfig) *FirestoreStorage {
	return &FirestoreStorage{cfg: cfg}
}

// Open initializes the Firebase app and its Firestore client.
func (s *FirestoreStorage) Open() error {
	ctx := context.Background()

	var opts []option.ClientOption
	if s.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.cfg.CredentialsFile))
	}

	var fbConfig *firebase.Config
	if s.cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: s.cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return fmt.Errorf("get firestore client: %w", err)
	}

	s.client = client
	s.users = &fsUserRepo{client: client}
	s.projects = &fsProjectRepo{client: client}
	s.reports = &fsReportRepo{client: client}
	s.tokens = &fsTokenRepo{client: client}
	return nil
}

// Close closes the Firestore client.
func (s *FirestoreStorage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping reads at most one project document to verify connectivity.
func (s *FirestoreStorage) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("firestore not opened")
	}
	iter := s.client.Collection(colProjects).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("ping firestore: %w", err)
	}
	return nil
}

// Migrate is a no-op: Firestore is schemaless.
func (s *FirestoreStorage) Migrate() error {
	return nil
}

// EnsureStaffUser creates the first ets account if the database has no users.
func (s *FirestoreStorage) EnsureStaffUser(email string) (string, error) {
	return ensureStaffUser(context.Background(), s.Users(), email)
}

func (s *FirestoreStorage) Users() UserRepository       { return s.users }
func (s *FirestoreStorage) Projects() ProjectRepository { return s.projects }
func (s *FirestoreStorage) Reports() ReportRepository   { return s.reports }
func (s *FirestoreStorage) Tokens() TokenRepository     { return s.tokens }

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// collect drains a document iterator, decoding each snapshot with decode.
func collect[T any](iter *firestore.DocumentIterator, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	defer iter.Stop()
	var out []T
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// --- users ---

type userDoc struct {
	ID             string    `firestore:"id"`
	Email          string    `firestore:"email"`
	EmailLower     string    `firestore:"email_lower"`
	DisplayName    string    `firestore:"display_name"`
	PasswordHash   string    `firestore:"password_hash"`
	Role           string    `firestore:"role"`
	ApprovalStatus string    `firestore:"approval_status"`
	CreatedAt      time.Time `firestore:"created_at"`
	UpdatedAt      time.Time `firestore:"updated_at"`
}

func toUserDoc(u *models.User) *userDoc {
	return &userDoc{
		ID:             u.ID,
		Email:          u.Email,
		EmailLower:     strings.ToLower(strings.TrimSpace(u.Email)),
		DisplayName:    u.DisplayName,
		PasswordHash:   u.PasswordHash,
		Role:           string(u.Role),
		ApprovalStatus: string(u.ApprovalStatus),
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func decodeUser(snap *firestore.DocumentSnapshot) (*models.User, error) {
	var d userDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &models.User{
		ID:             d.ID,
		Email:          d.Email,
		DisplayName:    d.DisplayName,
		PasswordHash:   d.PasswordHash,
		Role:           models.Role(d.Role),
		ApprovalStatus: models.ApprovalStatus(d.ApprovalStatus),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

type fsUserRepo struct {
	client *firestore.Client
}

func (r *fsUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	existing, err := r.GetByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("insert user: email already exists: %s", user.Email)
	}
	if _, err := r.client.Collection(colUsers).Doc(user.ID).Create(ctx, toUserDoc(user)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *fsUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	snap, err := r.client.Collection(colUsers).Doc(id).Get(ctx)
	if isNotFound(err) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return decodeUser(snap)
}

func (r *fsUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	iter := r.client.Collection(colUsers).
		Where("email_lower", "==", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).Documents(ctx)
	users, err := collect(iter, decodeUser)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if len(users) == 0 {
		//nolint:nilnil
		return nil, nil
	}
	return users[0], nil
}

func (r *fsUserRepo) Update(ctx context.Context, user *models.User) error {
	ref := r.client.Collection(colUsers).Doc(user.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return notFound("user", user.ID)
			}
			return err
		}
		return tx.Set(ref, toUserDoc(user))
	})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete removes the user and clears it as vendor of any assigned project.
func (r *fsUserRepo) Delete(ctx context.Context, id string) error {
	ref := r.client.Collection(colUsers).Doc(id)
	assigned := r.client.Collection(colProjects).Where("vendor_id", "==", id)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return notFound("user", id)
			}
			return err
		}
		projects, err := tx.Documents(assigned).GetAll()
		if err != nil {
			return err
		}
		for _, p := range projects {
			if err := tx.Update(p.Ref, []firestore.Update{{Path: "vendor_id", Value: ""}}); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (r *fsUserRepo) List(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	q := r.client.Collection(colUsers).Query
	if filter.Role != "" {
		q = q.Where("role", "==", string(filter.Role))
	}
	if filter.ApprovalStatus != "" {
		q = q.Where("approval_status", "==", string(filter.ApprovalStatus))
	}
	users, err := collect(q.Documents(ctx), decodeUser)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func (r *fsUserRepo) Count(ctx context.Context) (int64, error) {
	docs, err := r.client.Collection(colUsers).Select().Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return int64(len(docs)), nil
}

// --- projects ---

type projectDoc struct {
	ID          string     `firestore:"id"`
	Name        string     `firestore:"name"`
	Status      string     `firestore:"status"`
	StatusColor string     `firestore:"status_color"`
	Description string     `firestore:"description"`
	Department  string     `firestore:"department"`
	StartDate   *time.Time `firestore:"start_date"`
	EndDate     *time.Time `firestore:"end_date"`
	Budget      string     `firestore:"budget"`
	Spent       string     `firestore:"spent"`
	VendorID    string     `firestore:"vendor_id"`
	CreatedAt   time.Time  `firestore:"created_at"`
	UpdatedAt   time.Time  `firestore:"updated_at"`
}

func toProjectDoc(p *models.Project) *projectDoc {
	return &projectDoc{
		ID:          p.ID,
		Name:        p.Name,
		Status:      string(p.Status),
		StatusColor: p.StatusColor,
		Description: p.Description,
		Department:  p.Department,
		StartDate:   p.StartDate,
		EndDate:     p.EndDate,
		Budget:      p.Budget.String(),
		Spent:       p.Spent.String(),
		VendorID:    p.VendorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func decodeProject(snap *firestore.DocumentSnapshot) (*models.Project, error) {
	var d projectDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	budget, err := decimal.NewFromString(orZero(d.Budget))
	if err != nil {
		return nil, fmt.Errorf("decode project budget: %w", err)
	}
	spent, err := decimal.NewFromString(orZero(d.Spent))
	if err != nil {
		return nil, fmt.Errorf("decode project spent: %w", err)
	}
	return &models.Project{
		ID:          d.ID,
		Name:        d.Name,
		Status:      models.ProjectStatus(d.Status),
		StatusColor: d.StatusColor,
		Description: d.Description,
		Department:  d.Department,
		StartDate:   d.StartDate,
		EndDate:     d.EndDate,
		Budget:      budget,
		Spent:       spent,
		VendorID:    d.VendorID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

type fsProjectRepo struct {
	client *firestore.Client
}

func (r *fsProjectRepo) Create(ctx context.Context, project *models.Project) error {
	if project.ID == "" {
		project.ID = uuid.New().String()
	}
	existing, err := r.GetByName(ctx, project.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("insert project: name already exists: %s", project.Name)
	}
	if _, err := r.client.Collection(colProjects).Doc(project.ID).Create(ctx, toProjectDoc(project)); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *fsProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	snap, err := r.client.Collection(colProjects).Doc(id).Get(ctx)
	if isNotFound(err) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by id: %w", err)
	}
	return decodeProject(snap)
}

func (r *fsProjectRepo) GetByName(ctx context.Context, name string) (*models.Project, error) {
	iter := r.client.Collection(colProjects).Where("name", "==", name).Limit(1).Documents(ctx)
	projects, err := collect(iter, decodeProject)
	if err != nil {
		return nil, fmt.Errorf("get project by name: %w", err)
	}
	if len(projects) == 0 {
		//nolint:nilnil
		return nil, nil
	}
	return projects[0], nil
}

func (r *fsProjectRepo) Update(ctx context.Context, project *models.Project) error {
	ref := r.client.Collection(colProjects).Doc(project.ID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return notFound("project", project.ID)
			}
			return err
		}
		return tx.Set(ref, toProjectDoc(project))
	})
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

// cascadeBatchSize bounds the report deletes per transaction; Firestore
// rejects transactions with more than 500 writes.
const cascadeBatchSize = 400

// Delete removes the project together with its reports subcollection. Reports
// go in batches; the project document is deleted with the last batch.
func (r *fsProjectRepo) Delete(ctx context.Context, id string) error {
	ref := r.client.Collection(colProjects).Doc(id)
	page := ref.Collection(colReports).Limit(cascadeBatchSize)
	first, done := true, false
	for !done {
		err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			done = false
			if _, err := tx.Get(ref); err != nil {
				if isNotFound(err) {
					if !first {
						// Deleted concurrently after our first batch.
						done = true
						return nil
					}
					return notFound("project", id)
				}
				return err
			}
			reports, err := tx.Documents(page).GetAll()
			if err != nil {
				return err
			}
			for _, rep := range reports {
				if err := tx.Delete(rep.Ref); err != nil {
					return err
				}
			}
			if len(reports) == cascadeBatchSize {
				return nil
			}
			done = true
			return tx.Delete(ref)
		})
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		first = false
	}
	return nil
}

func (r *fsProjectRepo) List(ctx context.Context) ([]*models.Project, error) {
	return r.list(ctx, r.client.Collection(colProjects).Query)
}

func (r *fsProjectRepo) ListByVendor(ctx context.Context, vendorID string) ([]*models.Project, error) {
	return r.list(ctx, r.client.Collection(colProjects).Where("vendor_id", "==", vendorID))
}

func (r *fsProjectRepo) list(ctx context.Context, q firestore.Query) ([]*models.Project, error) {
	projects, err := collect(q.Documents(ctx), decodeProject)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// --- reports ---

type financialsDoc struct {
	OriginalAmount string  `firestore:"original_amount"`
	PaidToDate     string  `firestore:"paid_to_date"`
	PaidPercent    float64 `firestore:"paid_percent"`
}

type reportDoc struct {
	ID          string             `firestore:"id"`
	ProjectID   string             `firestore:"project_id"`
	ReportMonth string             `firestore:"report_month"`
	ReportDate  time.Time          `firestore:"report_date"`
	Background  string             `firestore:"background"`
	Assessment  models.Assessment  `firestore:"assessment"`
	Issues      []models.Issue     `firestore:"issues"`
	Schedule    models.Schedule    `firestore:"schedule"`
	Financials  financialsDoc      `firestore:"financials"`
	Scope       models.ScopeStatus `firestore:"scope"`
	SubmittedBy string             `firestore:"submitted_by"`
	CreatedAt   time.Time          `firestore:"created_at"`
	UpdatedAt   time.Time          `firestore:"updated_at"`
}

func toReportDoc(r *models.Report) *reportDoc {
	return &reportDoc{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		ReportMonth: r.ReportMonth,
		ReportDate:  r.ReportDate,
		Background:  r.Background,
		Assessment:  r.Assessment,
		Issues:      r.Issues,
		Schedule:    r.Schedule,
		Financials: financialsDoc{
			OriginalAmount: r.Financials.OriginalAmount.String(),
			PaidToDate:     r.Financials.PaidToDate.String(),
			PaidPercent:    r.Financials.PaidPercent,
		},
		Scope:       r.Scope,
		SubmittedBy: r.SubmittedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func decodeReport(snap *firestore.DocumentSnapshot) (*models.Report, error) {
	var d reportDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	original, err := decimal.NewFromString(orZero(d.Financials.OriginalAmount))
	if err != nil {
		return nil, fmt.Errorf("decode original amount: %w", err)
	}
	paid, err := decimal.NewFromString(orZero(d.Financials.PaidToDate))
	if err != nil {
		return nil, fmt.Errorf("decode paid to date: %w", err)
	}
	return &models.Report{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		ReportMonth: d.ReportMonth,
		ReportDate:  d.ReportDate,
		Background:  d.Background,
		Assessment:  d.Assessment,
		Issues:      d.Issues,
		Schedule:    d.Schedule,
		Financials: models.Financials{
			OriginalAmount: original,
			PaidToDate:     paid,
			PaidPercent:    d.Financials.PaidPercent,
		},
		Scope:       d.Scope,
		SubmittedBy: d.SubmittedBy,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type fsReportRepo struct {
	client *firestore.Client
}

func (r *fsReportRepo) reports(projectID string) *firestore.CollectionRef {
	return r.client.Collection(colProjects).Doc(projectID).Collection(colReports)
}

var errReportNotFound = errors.New("report not found")

func (r *fsReportRepo) Create(ctx context.Context, report *models.Report, prepare PrepareFunc) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	return r.write(ctx, report, prepare, false)
}

func (r *fsReportRepo) Update(ctx context.Context, report *models.Report, prepare PrepareFunc) error {
	return r.write(ctx, report, prepare, true)
}

// write runs the month check, the baseline lookup, prepare and the write in
// one transaction. Firestore retries the function on contention, so prepare
// may be called more than once.
func (r *fsReportRepo) write(ctx context.Context, report *models.Report, prepare PrepareFunc, mustExist bool) error {
	col := r.reports(report.ProjectID)
	ref := col.Doc(report.ID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		siblings, err := tx.Documents(col).GetAll()
		if err != nil {
			return err
		}

		var (
			found    bool
			earliest *models.Report
		)
		for _, snap := range siblings {
			other, err := decodeReport(snap)
			if err != nil {
				return err
			}
			if other.ID == report.ID {
				found = true
				continue
			}
			if other.ReportMonth == report.ReportMonth {
				return ErrDuplicateMonth
			}
			if earliest == nil || other.CreatedAt.Before(earliest.CreatedAt) ||
				(other.CreatedAt.Equal(earliest.CreatedAt) && other.ID < earliest.ID) {
				earliest = other
			}
		}
		if mustExist && !found {
			return errReportNotFound
		}

		if prepare != nil {
			var baseline *time.Time
			if earliest != nil {
				b := earliest.Schedule.BaselineDate
				baseline = &b
			}
			if err := prepare(baseline); err != nil {
				return err
			}
		}

		if mustExist {
			return tx.Set(ref, toReportDoc(report))
		}
		return tx.Create(ref, toReportDoc(report))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errReportNotFound):
		return notFound("report", report.ID)
	case errors.Is(err, ErrDuplicateMonth):
		return ErrDuplicateMonth
	}
	if mustExist {
		return fmt.Errorf("update report: %w", err)
	}
	return fmt.Errorf("insert report: %w", err)
}

func (r *fsReportRepo) GetByID(ctx context.Context, projectID, id string) (*models.Report, error) {
	snap, err := r.reports(projectID).Doc(id).Get(ctx)
	if isNotFound(err) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report by id: %w", err)
	}
	return decodeReport(snap)
}

// ListByProject returns the project's reports, newest month first.
func (r *fsReportRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Report, error) {
	reports, err := collect(r.reports(projectID).Documents(ctx), decodeReport)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	sort.Slice(reports, func(i, j int) bool {
		if reports[i].ReportMonth != reports[j].ReportMonth {
			return reports[i].ReportMonth > reports[j].ReportMonth
		}
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

func (r *fsReportRepo) Delete(ctx context.Context, projectID, id string) error {
	ref := r.reports(projectID).Doc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return notFound("report", id)
			}
			return err
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// --- refresh tokens ---

type tokenDoc struct {
	ID         string     `firestore:"id"`
	UserID     string     `firestore:"user_id"`
	TokenHash  string     `firestore:"token_hash"`
	ExpiresAt  time.Time  `firestore:"expires_at"`
	CreatedAt  time.Time  `firestore:"created_at"`
	Revoked    bool       `firestore:"revoked"`
	RevokedAt  *time.Time `firestore:"revoked_at"`
	ReplacedBy string     `firestore:"replaced_by"`
}

func newTokenDoc(token *models.RefreshToken) *tokenDoc {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	return &tokenDoc{
		ID:         token.ID,
		UserID:     token.UserID,
		TokenHash:  token.TokenHash,
		ExpiresAt:  token.ExpiresAt,
		CreatedAt:  token.CreatedAt,
		Revoked:    token.Revoked,
		RevokedAt:  token.RevokedAt,
		ReplacedBy: token.ReplacedBy,
	}
}

func decodeToken(snap *firestore.DocumentSnapshot) (*models.RefreshToken, error) {
	var d tokenDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	return &models.RefreshToken{
		ID:         d.ID,
		UserID:     d.UserID,
		TokenHash:  d.TokenHash,
		ExpiresAt:  d.ExpiresAt,
		CreatedAt:  d.CreatedAt,
		Revoked:    d.Revoked,
		RevokedAt:  d.RevokedAt,
		ReplacedBy: d.ReplacedBy,
	}, nil
}

type fsTokenRepo struct {
	client *firestore.Client
}

func (r *fsTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	doc := newTokenDoc(token)
	if _, err := r.client.Collection(colTokens).Doc(token.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *fsTokenRepo) Rotate(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	doc := newTokenDoc(next)
	col := r.client.Collection(colTokens)
	q := col.Where("token_hash", "==", oldHash).Limit(1)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return ErrTokenInactive
		}
		old, err := decodeToken(snaps[0])
		if err != nil {
			return err
		}
		if !old.IsValid() {
			return ErrTokenInactive
		}
		now := time.Now()
		err = tx.Update(snaps[0].Ref, []firestore.Update{
			{Path: "revoked", Value: true},
			{Path: "revoked_at", Value: now},
			{Path: "replaced_by", Value: next.ID},
		})
		if err != nil {
			return err
		}
		return tx.Create(col.Doc(next.ID), doc)
	})
	if errors.Is(err, ErrTokenInactive) {
		return err
	}
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

func (r *fsTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	iter := r.client.Collection(colTokens).Where("token_hash", "==", tokenHash).Limit(1).Documents(ctx)
	tokens, err := collect(iter, decodeToken)
	if err != nil {
		return nil, fmt.Errorf("query refresh token: %w", err)
	}
	if len(tokens) == 0 {
		//nolint:nilnil
		return nil, nil
	}
	return tokens[0], nil
}

func (r *fsTokenRepo) revoke(ctx context.Context, q firestore.Query) error {
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		now := time.Now()
		for _, d := range docs {
			err := tx.Update(d.Ref, []firestore.Update{
				{Path: "revoked", Value: true},
				{Path: "revoked_at", Value: now},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *fsTokenRepo) RevokeByTokenHash(ctx context.Context, tokenHash string) error {
	q := r.client.Collection(colTokens).Where("token_hash", "==", tokenHash).Where("revoked", "==", false)
	if err := r.revoke(ctx, q); err != nil {
		return fmt.Errorf("revoke token by hash: %w", err)
	}
	return nil
}

func (r *fsTokenRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	q := r.client.Collection(colTokens).Where("user_id", "==", userID).Where("revoked", "==", false)
	if err := r.revoke(ctx, q); err != nil {
		return fmt.Errorf("revoke all tokens for user: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past expiry.
func (r *fsTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	docs, err := r.client.Collection(colTokens).Where("expires_at", "<", time.Now()).Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	var deleted int64
	for _, d := range docs {
		if _, err := d.Ref.Delete(ctx); err != nil && !isNotFound(err) {
			return deleted, fmt.Errorf("delete expired tokens: %w", err)
		}
		deleted++
	}
	return deleted, nil
}
