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

var _ = Describe("EnvVarRepo", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		repo   *EnvVarRepo
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		repo = &EnvVarRepo{db: mockDB}
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mockDB.Close()
	})

	Describe("Create", func() {
		It("surfaces a (application_id, key) collision as KindConflict", func() {
			e := &domain.EnvironmentVariable{
				ID: "env-1", ApplicationID: "app-1", Key: "PORT", ValueSealed: "sealed", CreatedAt: time.Now(),
			}

			mock.ExpectExec(`INSERT INTO environment_variables`).
				WithArgs(e.ID, e.ApplicationID, e.Key, e.ValueSealed, e.CreatedAt).
				WillReturnError(sql.ErrTxDone)

			err := repo.Create(e)
			Expect(perr.KindOf(err)).To(Equal(perr.KindConflict))
		})

		It("succeeds when the pair is unique", func() {
			e := &domain.EnvironmentVariable{
				ID: "env-1", ApplicationID: "app-1", Key: "PORT", ValueSealed: "sealed", CreatedAt: time.Now(),
			}

			mock.ExpectExec(`INSERT INTO environment_variables`).
				WithArgs(e.ID, e.ApplicationID, e.Key, e.ValueSealed, e.CreatedAt).
				WillReturnResult(sqlmock.NewResult(1, 1))

			Expect(repo.Create(e)).To(Succeed())
		})
	})

	Describe("UpdateValue", func() {
		It("returns KindNotFound when no row matches the (application_id, key) pair", func() {
			mock.ExpectExec(`UPDATE environment_variables SET value_sealed`).
				WithArgs("resealed", "app-1", "PORT").
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.UpdateValue("app-1", "PORT", "resealed")
			Expect(perr.KindOf(err)).To(Equal(perr.KindNotFound))
		})

		It("succeeds when a row is updated", func() {
			mock.ExpectExec(`UPDATE environment_variables SET value_sealed`).
				WithArgs("resealed", "app-1", "PORT").
				WillReturnResult(sqlmock.NewResult(0, 1))

			Expect(repo.UpdateValue("app-1", "PORT", "resealed")).To(Succeed())
		})
	})
})
