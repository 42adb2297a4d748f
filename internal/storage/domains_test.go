package storage

import (
	"database/sql"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nusendra/ployer/internal/perr"
)

var _ = Describe("DomainRepo.SetPrimary", func() {
	var (
		mockDB *sql.DB
		mock   sqlmock.Sqlmock
		repo   *DomainRepo
	)

	BeforeEach(func() {
		var err error
		mockDB, mock, err = sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		repo = &DomainRepo{db: mockDB}
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mockDB.Close()
	})

	It("unsets the previous primary and sets the new one inside a single transaction", func() {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE domains SET is_primary = 0 WHERE application_id = \?`).
			WithArgs("app-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE domains SET is_primary = 1 WHERE id = \? AND application_id = \?`).
			WithArgs("dom-2", "app-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		Expect(repo.SetPrimary("app-1", "dom-2")).To(Succeed())
	})

	It("rolls back and returns KindNotFound when the target domain doesn't belong to the application", func() {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE domains SET is_primary = 0 WHERE application_id = \?`).
			WithArgs("app-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE domains SET is_primary = 1 WHERE id = \? AND application_id = \?`).
			WithArgs("dom-other-app", "app-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.SetPrimary("app-1", "dom-other-app")
		Expect(perr.KindOf(err)).To(Equal(perr.KindNotFound))
	})

	It("rolls back when the unset step fails", func() {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE domains SET is_primary = 0 WHERE application_id = \?`).
			WithArgs("app-1").
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := repo.SetPrimary("app-1", "dom-2")
		Expect(err).To(HaveOccurred())
	})
})
