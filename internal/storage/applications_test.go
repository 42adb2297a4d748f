package storage

import (
	"database/sql"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nusendra/ployer/internal/domain"
	"github.com/nusendra/ployer/internal/perr"
)

var _ = Describe("ApplicationRepo", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		repo   *ApplicationRepo
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		repo = &ApplicationRepo{db: mockDB}
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mockDB.Close()
	})

	Describe("Create", func() {
		It("inserts every column of the application row", func() {
			app := &domain.Application{
				ID:            "app-1",
				Name:          "myapp",
				ServerID:      "srv-1",
				GitBranch:     "main",
				BuildStrategy: domain.BuildDockerfile,
				Status:        domain.AppIdle,
				AutoDeploy:    true,
				CreatedAt:     time.Unix(0, 0).UTC(),
				UpdatedAt:     time.Unix(0, 0).UTC(),
			}

			mock.ExpectExec(`INSERT INTO applications`).
				WithArgs(app.ID, app.Name, app.ServerID, nil, app.GitBranch, string(app.BuildStrategy), nil, nil, string(app.Status), 1, app.CreatedAt, app.UpdatedAt).
				WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(repo.Create(app)).To(Succeed())
		})

		It("wraps a UNIQUE constraint violation as KindIntegrity", func() {
			app := &domain.Application{ID: "app-1", Name: "dup", ServerID: "srv-1", CreatedAt: time.Now(), UpdatedAt: time.Now()}

			mock.ExpectExec(`INSERT INTO applications`).
				WillReturnError(sql.ErrTxDone)

			err := repo.Create(app)
			Expect(err).To(HaveOccurred())
			Expect(perr.KindOf(err)).To(Equal(perr.KindIntegrity))
		})
	})

	Describe("FindByID", func() {
		It("returns KindNotFound when no row matches", func() {
			mock.ExpectQuery(`SELECT (.+) FROM applications WHERE id = \?`).
				WithArgs("missing").
				WillReturnError(sql.ErrNoRows)

			_, err := repo.FindByID("missing")
			Expect(perr.KindOf(err)).To(Equal(perr.KindNotFound))
		})

		It("scans a matching row", func() {
			now := time.Unix(0, 0).UTC()
			rows := sqlmock.NewRows([]string{
				"id", "name", "server_id", "git_url", "git_branch", "build_strategy",
				"dockerfile_path", "port", "status", "auto_deploy", "created_at", "updated_at",
			}).AddRow("app-1", "myapp", "srv-1", nil, "main", "dockerfile", nil, nil, "idle", 1, now, now)

			mock.ExpectQuery(`SELECT (.+) FROM applications WHERE id = \?`).
				WithArgs("app-1").
				WillReturnRows(rows)

			app, err := repo.FindByID("app-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(app.Name).To(Equal("myapp"))
			Expect(app.AutoDeploy).To(BeTrue())
		})
	})
})
