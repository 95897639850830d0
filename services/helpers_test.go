package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"pplp-service/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a per-test in-memory database with every table migrated.
// One connection keeps transactions serialized like row locks would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// insertScoredAction stores an action that has already been scored.
func insertScoredAction(t *testing.T, db *gorm.DB, actorID, actionType string, reward float64, decision models.Decision) models.Action {
	t.Helper()
	now := time.Now().UTC()
	action := models.Action{
		ID:            uuid.NewString(),
		PlatformID:    defaultPlatformID,
		ActionType:    actionType,
		ActorID:       actorID,
		Metadata:      datatypes.NewJSONType(models.ActionMetadata{}),
		Impact:        datatypes.NewJSONType(models.ActionImpact{}),
		Integrity:     datatypes.NewJSONType(models.ActionIntegrity{}),
		EvidenceHash:  "0x" + strings.Repeat("ab", 32),
		CanonicalHash: "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:        models.ActionStatusScored,
		PolicyVersion: "v1.0",
		CreatedAt:     now,
		ScoredAt:      &now,
	}
	require.NoError(t, db.Create(&action).Error)

	score := models.Score{
		ID:            uuid.NewString(),
		ActionID:      action.ID,
		FinalReward:   reward,
		Decision:      decision,
		ScoredBy:      "test",
		PolicyVersion: "v1.0",
		CreatedAt:     now,
	}
	require.NoError(t, db.Create(&score).Error)
	return action
}

// insertPendingAction stores a raw pending action created at the given time.
func insertPendingAction(t *testing.T, db *gorm.DB, actorID string, createdAt time.Time) models.Action {
	t.Helper()
	action := models.Action{
		ID:         uuid.NewString(),
		PlatformID: defaultPlatformID,
		ActionType: models.ActionTypePost,
		ActorID:    actorID,
		Metadata: datatypes.NewJSONType(models.ActionMetadata{
			HasEvidence:    true,
			SentimentScore: 0.75,
		}),
		Impact: datatypes.NewJSONType(models.ActionImpact{
			Beneficiaries: 1,
			Outcome:       models.OutcomePositive,
			PromotesUnity: true,
		}),
		Integrity: datatypes.NewJSONType(models.ActionIntegrity{
			SourceVerified: true,
			AntiSybilScore: 0.85,
		}),
		EvidenceHash:  "0x" + strings.Repeat("cd", 32),
		CanonicalHash: "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:        models.ActionStatusPending,
		PolicyVersion: "v1.0",
		CreatedAt:     createdAt.UTC(),
	}
	require.NoError(t, db.Create(&action).Error)
	return action
}

func ptr[T any](v T) *T { return &v }

// testActor is a well-formed user id for services that validate ids.
const testActor = "5d1b7c3e-8a4f-4b2d-9e6c-0f1a2b3c4d5e"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }
