// Package service exposes the read-only student/class directory consumed by
// the fee ledger: it scopes ledgers to a class and supplies display names.
package service

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"feeledger_backend/internals/features/finance/finerr"
	"feeledger_backend/internals/features/students/model"
)

type Student struct {
	ID       uuid.UUID  `json:"student_id"`
	SchoolID uuid.UUID  `json:"school_id"`
	ClassID  *uuid.UUID `json:"class_id,omitempty"`
	Name     string     `json:"name"`
	Email    string     `json:"email,omitempty"`
	Phone    string     `json:"phone,omitempty"`
}

type School struct {
	ID      uuid.UUID `json:"school_id"`
	Name    string    `json:"name"`
	Address string    `json:"address,omitempty"`
}

type Directory interface {
	// Lookup returns finerr.NotFoundError when the student is not enrolled in schoolID.
	Lookup(ctx context.Context, schoolID, studentID uuid.UUID) (Student, error)
	LookupMany(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID) (map[uuid.UUID]Student, error)
	StudentIDsInClass(ctx context.Context, schoolID, classID uuid.UUID) ([]uuid.UUID, error)
	School(ctx context.Context, schoolID uuid.UUID) (School, error)
}

/* ===================== gorm ===================== */

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Lookup(ctx context.Context, schoolID, studentID uuid.UUID) (Student, error) {
	var row model.SchoolStudentModel
	err := d.db.WithContext(ctx).
		Where("school_student_school_id = ? AND school_student_id = ?", schoolID, studentID).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return Student{}, finerr.NotFound("student", studentID.String())
	}
	if err != nil {
		return Student{}, finerr.Wrap(err, "lookup student")
	}
	return toStudent(row), nil
}

func (d *GormDirectory) LookupMany(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID) (map[uuid.UUID]Student, error) {
	out := make(map[uuid.UUID]Student, len(studentIDs))
	if len(studentIDs) == 0 {
		return out, nil
	}
	var rows []model.SchoolStudentModel
	err := d.db.WithContext(ctx).
		Where("school_student_school_id = ? AND school_student_id = ANY(?)", schoolID, pq.Array(uuidStrings(studentIDs))).
		Find(&rows).Error
	if err != nil {
		return nil, finerr.Wrap(err, "lookup students")
	}
	for _, r := range rows {
		out[r.SchoolStudentID] = toStudent(r)
	}
	return out, nil
}

func (d *GormDirectory) StudentIDsInClass(ctx context.Context, schoolID, classID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.db.WithContext(ctx).
		Model(&model.SchoolStudentModel{}).
		Where("school_student_school_id = ? AND school_student_class_id = ?", schoolID, classID).
		Pluck("school_student_id", &ids).Error
	if err != nil {
		return nil, finerr.Wrap(err, "list class students")
	}
	return ids, nil
}

func (d *GormDirectory) School(ctx context.Context, schoolID uuid.UUID) (School, error) {
	var row model.SchoolModel
	err := d.db.WithContext(ctx).Where("school_id = ?", schoolID).Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return School{}, finerr.NotFound("school", schoolID.String())
	}
	if err != nil {
		return School{}, finerr.Wrap(err, "lookup school")
	}
	s := School{ID: row.SchoolID, Name: row.SchoolName}
	if row.SchoolAddress != nil {
		s.Address = *row.SchoolAddress
	}
	return s, nil
}

func toStudent(r model.SchoolStudentModel) Student {
	s := Student{ID: r.SchoolStudentID, SchoolID: r.SchoolStudentSchoolID, ClassID: r.SchoolStudentClassID, Name: r.SchoolStudentName}
	if r.SchoolStudentEmail != nil {
		s.Email = *r.SchoolStudentEmail
	}
	if r.SchoolStudentPhone != nil {
		s.Phone = *r.SchoolStudentPhone
	}
	return s
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

/* ===================== in-memory ===================== */

// MemDirectory is a fixed directory for tests and the local demo.
type MemDirectory struct {
	mu       sync.RWMutex
	students map[uuid.UUID]Student
	schools  map[uuid.UUID]School
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{students: map[uuid.UUID]Student{}, schools: map[uuid.UUID]School{}}
}

func (d *MemDirectory) AddSchool(s School) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.schools[s.ID] = s
}

func (d *MemDirectory) AddStudent(s Student) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[s.ID] = s
}

func (d *MemDirectory) Lookup(ctx context.Context, schoolID, studentID uuid.UUID) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.students[studentID]
	if !ok || s.SchoolID != schoolID {
		return Student{}, finerr.NotFound("student", studentID.String())
	}
	return s, nil
}

func (d *MemDirectory) LookupMany(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID) (map[uuid.UUID]Student, error) {
	out := make(map[uuid.UUID]Student, len(studentIDs))
	for _, id := range studentIDs {
		s, err := d.Lookup(ctx, schoolID, id)
		if finerr.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = s
	}
	return out, nil
}

func (d *MemDirectory) StudentIDsInClass(ctx context.Context, schoolID, classID uuid.UUID) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []uuid.UUID
	for _, s := range d.students {
		if s.SchoolID == schoolID && s.ClassID != nil && *s.ClassID == classID {
			ids = append(ids, s.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (d *MemDirectory) School(ctx context.Context, schoolID uuid.UUID) (School, error) {
	if err := ctx.Err(); err != nil {
		return School{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.schools[schoolID]
	if !ok {
		return School{}, finerr.NotFound("school", schoolID.String())
	}
	return s, nil
}
