package fee_ledgers

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"feeledger_backend/internals/constants"
	ledgerService "feeledger_backend/internals/features/finance/fee_ledgers/service"
	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/finance/store"
	studentsvc "feeledger_backend/internals/features/students/service"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

type FeeLedgerSeed struct {
	SchoolID        uuid.UUID        `json:"school_id"`
	StudentID       uuid.UUID        `json:"student_id"`
	TotalFee        decimal.Decimal  `json:"total_fee"`
	DiscountPercent decimal.Decimal  `json:"discount_percent"`
	Installments    int              `json:"installments"`
	AmountPaid      *decimal.Decimal `json:"amount_paid"`
}

// SeedFeeLedgersFromJSON goes through the ledger service so seeded rows get
// the same derived fields as API-created ones. Existing ledgers are skipped.
func SeedFeeLedgersFromJSON(db *gorm.DB, filePath string) {
	log.Println("[SEED] reading", filePath)

	content, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatalf("[SEED] read %s: %v", filePath, err)
	}

	var data []FeeLedgerSeed
	if err := json.Unmarshal(content, &data); err != nil {
		log.Fatalf("[SEED] decode %s: %v", filePath, err)
	}

	svc := ledgerService.New(store.NewGormStore(db), studentsvc.NewGormDirectory(db))
	ctx := context.Background()
	seeder := uuid.New()

	for _, item := range data {
		sc := helperAuth.Scope{SchoolID: item.SchoolID, ActorID: seeder, Role: constants.RoleSuperAdmin}

		_, err := svc.Create(ctx, sc, ledgerService.CreateInput{
			StudentID:       item.StudentID,
			TotalFee:        item.TotalFee,
			DiscountPercent: item.DiscountPercent,
			Installments:    item.Installments,
		})
		if finerr.IsValidation(err) {
			log.Printf("[SEED] ledger for %s skipped: %v", item.StudentID, err)
			continue
		}
		if err != nil {
			log.Printf("[SEED] ledger for %s: %v", item.StudentID, err)
			continue
		}

		if item.AmountPaid != nil && item.AmountPaid.GreaterThan(decimal.Zero) {
			if _, err := svc.ApplyPayment(ctx, sc, item.StudentID, *item.AmountPaid); err != nil {
				log.Printf("[SEED] opening balance for %s: %v", item.StudentID, err)
				continue
			}
		}
		log.Printf("[SEED] ledger for %s inserted", item.StudentID)
	}
}
