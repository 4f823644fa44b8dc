package seeds

import (
	"log"

	"gorm.io/gorm"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	paymentModel "feeledger_backend/internals/features/finance/payments/model"
	studentModel "feeledger_backend/internals/features/students/model"
	feeLedgers "feeledger_backend/internals/seeds/fee_ledgers"
	"feeledger_backend/internals/seeds/students"
)

// Migrate creates the fee tables. schools and school_students belong to the
// school service; they are migrated here only for local databases.
func Migrate(db *gorm.DB) error {
	log.Println("[INFO] running auto migration...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return err
	}
	return db.AutoMigrate(
		&studentModel.SchoolModel{},
		&studentModel.SchoolStudentModel{},
		&ledgerModel.FeeLedgerModel{},
		&paymentModel.PaymentModel{},
		&paymentModel.PaymentGatewayEventModel{},
	)
}

func RunAllSeeds(db *gorm.DB) {
	//* Directory
	students.SeedSchoolStudentsFromJSON(db, "internals/seeds/students/data_school_students.json")

	//* Fees
	feeLedgers.SeedFeeLedgersFromJSON(db, "internals/seeds/fee_ledgers/data_fee_ledgers.json")
}
