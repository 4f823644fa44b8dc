package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SchoolStudentModel is owned by the school management service. This module
// only reads it.
type SchoolStudentModel struct {
	SchoolStudentID       uuid.UUID      `gorm:"column:school_student_id;type:uuid;primaryKey" json:"school_student_id"`
	SchoolStudentSchoolID uuid.UUID      `gorm:"column:school_student_school_id;type:uuid;not null;index" json:"school_student_school_id"`
	SchoolStudentClassID  *uuid.UUID     `gorm:"column:school_student_class_id;type:uuid;index" json:"school_student_class_id,omitempty"`
	SchoolStudentName     string         `gorm:"column:school_student_name;not null" json:"school_student_name"`
	SchoolStudentEmail    *string        `gorm:"column:school_student_email" json:"school_student_email,omitempty"`
	SchoolStudentPhone    *string        `gorm:"column:school_student_phone" json:"school_student_phone,omitempty"`
	SchoolStudentCreated  time.Time      `gorm:"column:school_student_created_at;autoCreateTime" json:"school_student_created_at"`
	SchoolStudentDeleted  gorm.DeletedAt `gorm:"column:school_student_deleted_at;index" json:"-"`
}

func (SchoolStudentModel) TableName() string { return "school_students" }

type SchoolModel struct {
	SchoolID      uuid.UUID      `gorm:"column:school_id;type:uuid;primaryKey" json:"school_id"`
	SchoolName    string         `gorm:"column:school_name;not null" json:"school_name"`
	SchoolAddress *string        `gorm:"column:school_address" json:"school_address,omitempty"`
	SchoolDeleted gorm.DeletedAt `gorm:"column:school_deleted_at;index" json:"-"`
}

func (SchoolModel) TableName() string { return "schools" }
