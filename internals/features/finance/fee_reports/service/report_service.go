package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	ledgerModel "feeledger_backend/internals/features/finance/fee_ledgers/model"
	"feeledger_backend/internals/features/finance/finerr"
	helperAuth "feeledger_backend/internals/helpers/auth"
)

// LedgerSource loads the ledgers of a school, optionally one class only.
type LedgerSource interface {
	LedgersForReport(ctx context.Context, sc helperAuth.Scope, classID *uuid.UUID) ([]ledgerModel.FeeLedgerModel, error)
}

// ReportService caches summaries per school in one redis hash
// (fee_report:<school_id>, field "school@<gen>" or "class:<id>@<gen>").
// A ledger or payment mutation bumps the school's generation
// (fee_report_gen:<school_id>) and drops the hash. A summary loaded before
// the bump is written under the old generation, where no reader looks.
type ReportService struct {
	src LedgerSource
	rdb redis.Cmdable // nil: no cache
	ttl time.Duration
}

func NewReportService(src LedgerSource, rdb redis.Cmdable, ttl time.Duration) *ReportService {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &ReportService{src: src, rdb: rdb, ttl: ttl}
}

func CacheKey(schoolID uuid.UUID) string { return "fee_report:" + schoolID.String() }

func GenerationKey(schoolID uuid.UUID) string { return "fee_report_gen:" + schoolID.String() }

func cacheField(classID *uuid.UUID, gen int64) string {
	if classID == nil {
		return fmt.Sprintf("school@%d", gen)
	}
	return fmt.Sprintf("class:%s@%d", classID, gen)
}

func (s *ReportService) SchoolSummary(ctx context.Context, sc helperAuth.Scope) (Summary, error) {
	return s.summary(ctx, sc, nil)
}

func (s *ReportService) ClassSummary(ctx context.Context, sc helperAuth.Scope, classID uuid.UUID) (Summary, error) {
	if classID == uuid.Nil {
		return Summary{}, finerr.ValidationFields("invalid report filter", finerr.FieldError{Field: "class_id", Error: "is required"})
	}
	return s.summary(ctx, sc, &classID)
}

// InvalidateSchool drops the cached summaries of schoolID. Cache errors are
// only logged; the TTL bounds staleness.
func (s *ReportService) InvalidateSchool(ctx context.Context, schoolID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Incr(ctx, GenerationKey(schoolID)).Err(); err != nil {
		log.Printf("[WARN] report cache generation school=%s: %v", schoolID, err)
	}
	if err := s.rdb.Del(ctx, CacheKey(schoolID)).Err(); err != nil {
		log.Printf("[WARN] report cache invalidate school=%s: %v", schoolID, err)
	}
}

func (s *ReportService) summary(ctx context.Context, sc helperAuth.Scope, classID *uuid.UUID) (Summary, error) {
	if sc.Restricts() {
		return Summary{}, fiber.NewError(fiber.StatusForbidden, "students cannot read fee reports")
	}
	if sc.SchoolID == uuid.Nil {
		return Summary{}, finerr.Validation("school scope is required")
	}

	key, field := CacheKey(sc.SchoolID), ""
	cacheable := s.rdb != nil
	if cacheable {
		gen, err := s.generation(ctx, sc.SchoolID)
		if err != nil {
			log.Printf("[WARN] report cache generation read %s: %v", sc.SchoolID, err)
			cacheable = false
		}
		field = cacheField(classID, gen)
	}
	if cacheable {
		raw, err := s.rdb.HGet(ctx, key, field).Result()
		switch {
		case err == nil:
			var out Summary
			if uerr := sonic.UnmarshalString(raw, &out); uerr == nil {
				return out, nil
			}
			log.Printf("[WARN] report cache %s/%s unreadable, recomputing", key, field)
		case errors.Is(err, redis.Nil):
		default:
			log.Printf("[WARN] report cache read %s/%s: %v", key, field, err)
			cacheable = false
		}
	}

	ledgers, err := s.src.LedgersForReport(ctx, sc, classID)
	if err != nil {
		return Summary{}, err
	}
	out := Summarize(ledgers)

	if cacheable {
		s.store(ctx, key, field, out)
	}
	return out, nil
}

func (s *ReportService) generation(ctx context.Context, schoolID uuid.UUID) (int64, error) {
	gen, err := s.rdb.Get(ctx, GenerationKey(schoolID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (s *ReportService) store(ctx context.Context, key, field string, sum Summary) {
	payload, err := EncodeSummary(sum)
	if err != nil {
		log.Printf("[WARN] report cache encode: %v", err)
		return
	}
	if err := s.rdb.HSet(ctx, key, field, payload).Err(); err != nil {
		log.Printf("[WARN] report cache write %s/%s: %v", key, field, err)
		return
	}
	// NX: the first write of the hash bounds the age of every field in it
	if err := s.rdb.ExpireNX(ctx, key, s.ttl).Err(); err != nil {
		log.Printf("[WARN] report cache expire %s: %v", key, err)
	}
}

func EncodeSummary(sum Summary) (string, error) {
	b, err := sonic.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	return string(b), nil
}
