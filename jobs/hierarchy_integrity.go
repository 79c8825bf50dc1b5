package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HierarchyIntegrityJob verifies that every placed partner's materialized
// path and depth agree with its parent. Moves rewrite subtrees in one
// transaction, so a mismatch means an out-of-band write or a bug; the scan
// reports, it never repairs.
type HierarchyIntegrityJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	clock  func() time.Time
}

// NewHierarchyIntegrityJob initialises the scan handler.
func NewHierarchyIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *HierarchyIntegrityJob {
	return &HierarchyIntegrityJob{
		Pool:   pool,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type placedPartner struct {
	ID       string
	ParentID *string
	IsRoot   bool
	Depth    int
	Path     string
}

// Handle executes the integrity scan.
func (j *HierarchyIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("hierarchy integrity: handler not configured")
	}
	var payload HierarchyIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxReported <= 0 {
		payload.MaxReported = 100
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting hierarchy integrity scan")

	partners, err := j.load(ctx)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	problems := checkPlacements(partners)
	for i, problem := range problems {
		if i >= payload.MaxReported {
			logger.Warn("inconsistency report truncated", slog.Int("omitted", len(problems)-payload.MaxReported))
			break
		}
		logger.Warn("hierarchy inconsistency",
			slog.String("partner_id", problem.PartnerID),
			slog.String("problem", problem.Description),
		)
	}

	logger.Info("completed hierarchy integrity scan",
		slog.Int("partners", len(partners)),
		slog.Int("inconsistencies", len(problems)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *HierarchyIntegrityJob) load(ctx context.Context) ([]placedPartner, error) {
	if j.Pool == nil {
		return nil, errors.New("hierarchy integrity: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `
SELECT id, parent_partner_id, is_root, hierarchy_depth, hierarchy_path
FROM partners
WHERE hierarchy_path <> ''
ORDER BY hierarchy_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var partners []placedPartner
	for rows.Next() {
		var p placedPartner
		if err := rows.Scan(&p.ID, &p.ParentID, &p.IsRoot, &p.Depth, &p.Path); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}

type placementProblem struct {
	PartnerID   string
	Description string
}

func checkPlacements(partners []placedPartner) []placementProblem {
	byID := make(map[string]placedPartner, len(partners))
	for _, p := range partners {
		byID[p.ID] = p
	}

	var problems []placementProblem
	report := func(id, description string) {
		problems = append(problems, placementProblem{PartnerID: id, Description: description})
	}

	for _, p := range partners {
		if !strings.HasSuffix(p.Path, "/"+p.ID) {
			report(p.ID, "path does not end with own id")
			continue
		}
		if p.ParentID == nil {
			if !p.IsRoot {
				report(p.ID, "placed without parent but not marked root")
			}
			if p.Depth != 0 {
				report(p.ID, "root with non-zero depth")
			}
			if p.Path != "/"+p.ID {
				report(p.ID, "root path is not /<id>")
			}
			continue
		}
		if p.IsRoot {
			report(p.ID, "marked root but has a parent")
		}
		parent, ok := byID[*p.ParentID]
		if !ok {
			report(p.ID, "parent missing from hierarchy")
			continue
		}
		if p.Path != parent.Path+"/"+p.ID {
			report(p.ID, "path does not extend parent path")
		}
		if p.Depth != parent.Depth+1 {
			report(p.ID, "depth is not parent depth plus one")
		}
	}
	return problems
}

func (j *HierarchyIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskHierarchyIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskHierarchyIntegrity))
}

func (j *HierarchyIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
