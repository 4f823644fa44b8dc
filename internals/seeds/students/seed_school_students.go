package students

import (
	"encoding/json"
	"log"
	"os"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"feeledger_backend/internals/features/students/model"
)

type StudentSeed struct {
	StudentID uuid.UUID  `json:"student_id"`
	ClassID   *uuid.UUID `json:"class_id"`
	Name      string     `json:"name"`
	Email     *string    `json:"email"`
	Phone     *string    `json:"phone"`
}

type SchoolSeed struct {
	SchoolID uuid.UUID     `json:"school_id"`
	Name     string        `json:"name"`
	Address  *string       `json:"address"`
	Students []StudentSeed `json:"students"`
}

// SeedSchoolStudentsFromJSON inserts schools and their enrolments; rows that
// already exist are left untouched.
func SeedSchoolStudentsFromJSON(db *gorm.DB, filePath string) {
	log.Println("[SEED] reading", filePath)

	content, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatalf("[SEED] read %s: %v", filePath, err)
	}

	var data []SchoolSeed
	if err := json.Unmarshal(content, &data); err != nil {
		log.Fatalf("[SEED] decode %s: %v", filePath, err)
	}

	for _, s := range data {
		school := model.SchoolModel{SchoolID: s.SchoolID, SchoolName: s.Name, SchoolAddress: s.Address}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&school)
		if res.Error != nil {
			log.Printf("[SEED] school %s: %v", s.Name, res.Error)
			continue
		}
		if res.RowsAffected == 0 {
			log.Printf("[SEED] school %s exists, skipping", s.Name)
		}

		rows := make([]model.SchoolStudentModel, 0, len(s.Students))
		for _, st := range s.Students {
			rows = append(rows, model.SchoolStudentModel{
				SchoolStudentID:       st.StudentID,
				SchoolStudentSchoolID: s.SchoolID,
				SchoolStudentClassID:  st.ClassID,
				SchoolStudentName:     st.Name,
				SchoolStudentEmail:    st.Email,
				SchoolStudentPhone:    st.Phone,
			})
		}
		if len(rows) == 0 {
			continue
		}
		res = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			log.Printf("[SEED] students of %s: %v", s.Name, res.Error)
			continue
		}
		log.Printf("[SEED] %s: %d/%d students inserted", s.Name, res.RowsAffected, len(rows))
	}
}
