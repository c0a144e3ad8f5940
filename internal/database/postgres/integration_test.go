package postgres

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pedalworks/trainsync/internal/database/schema"
	"github.com/pedalworks/trainsync/internal/domain"
	"github.com/pedalworks/trainsync/internal/repository"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	flag.Parse()

	var terminate func()

	if !testing.Short() {
		ctx := context.Background()
		connStr, stop := setupContainer(ctx)
		terminate = stop

		if connStr != "" {
			pool, err := pgxpool.New(ctx, connStr)
			if err == nil {
				if _, err := pool.Exec(ctx, schema.SchemaSQL); err != nil {
					fmt.Printf("WARNING: Failed to apply schema: %v\n", err)
					pool.Close()
				} else {
					testPool = pool
				}
			}
		}
	}

	code := m.Run()

	if testPool != nil {
		testPool.Close()
	}
	if terminate != nil {
		terminate()
	}

	os.Exit(code)
}

func setupContainer(ctx context.Context) (string, func()) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic in setupContainer: %v\n", r)
		}
	}()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		fmt.Printf("WARNING: Failed to start postgres container: %v\n", err)
		return "", func() {}
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Printf("WARNING: Failed to get connection string: %v\n", err)
		pgContainer.Terminate(ctx)
		return "", func() {}
	}

	return connStr, func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate container: %v\n", err)
		}
	}
}

func requireDB(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if testPool == nil {
		t.Skip("Skipping integration test: database not available")
	}
}

func testIntegration(userID string) *domain.Integration {
	expires := time.Now().Add(6 * time.Hour).UTC()
	return &domain.Integration{
		UserID:               userID,
		Provider:             domain.ProviderStrava,
		ProviderUserID:       "athlete-" + userID[:8],
		AccessToken:          "access-token",
		RefreshToken:         "refresh-token",
		AccessTokenExpiresAt: expires,
		SyncEnabled:          true,
		ProviderUserData:     json.RawMessage(`{"name":"Test Athlete"}`),
	}
}

func TestIntegrationRepository_UpsertIsSingleRow(t *testing.T) {
	requireDB(t)
	repo := NewIntegrationRepository(testPool)
	ctx := context.Background()
	userID := uuid.NewString()

	integration := testIntegration(userID)
	require.NoError(t, repo.UpsertIntegration(ctx, integration))
	firstUpdated := integration.UpdatedAt

	// Concurrent upserts for the same pair must never create duplicates
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			dup := testIntegration(userID)
			dup.AccessToken = fmt.Sprintf("access-%d", n)
			assert.NoError(t, repo.UpsertIntegration(ctx, dup))
		}(i)
	}
	wg.Wait()

	var count int
	err := testPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM integrations WHERE user_id = $1 AND provider = $2`,
		userID, domain.ProviderStrava).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert must never duplicate the (user, provider) row")

	got, err := repo.GetIntegration(ctx, userID, domain.ProviderStrava)
	require.NoError(t, err)
	assert.True(t, !got.UpdatedAt.Before(firstUpdated), "updated_at must advance")
	assert.Equal(t, integration.ProviderUserID, got.ProviderUserID)
}

func TestIntegrationRepository_GetMissing(t *testing.T) {
	requireDB(t)
	repo := NewIntegrationRepository(testPool)

	_, err := repo.GetIntegration(context.Background(), uuid.NewString(), domain.ProviderGarmin)
	assert.ErrorIs(t, err, domain.ErrIntegrationNotFound)
}

func TestIntegrationRepository_MalformedUserID(t *testing.T) {
	requireDB(t)
	repo := NewIntegrationRepository(testPool)

	_, err := repo.GetIntegration(context.Background(), "not-a-uuid", domain.ProviderStrava)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIntegrationRepository_ListExpiring(t *testing.T) {
	requireDB(t)
	repo := NewIntegrationRepository(testPool)
	ctx := context.Background()
	now := time.Now().UTC()

	// Access token expiring in 2h against a 24h threshold: selected.
	expiring := testIntegration(uuid.NewString())
	expiring.AccessTokenExpiresAt = now.Add(2 * time.Hour)
	require.NoError(t, repo.UpsertIntegration(ctx, expiring))

	// Fresh token well past the threshold: not selected.
	fresh := testIntegration(uuid.NewString())
	fresh.AccessTokenExpiresAt = now.Add(72 * time.Hour)
	require.NoError(t, repo.UpsertIntegration(ctx, fresh))

	// Invalid refresh token: excluded from the query entirely.
	invalid := testIntegration(uuid.NewString())
	invalid.AccessTokenExpiresAt = now.Add(1 * time.Hour)
	invalid.RefreshTokenInvalid = true
	require.NoError(t, repo.UpsertIntegration(ctx, invalid))

	// Refresh token expiring inside the refresh threshold: selected even
	// though the access token is fresh.
	refreshExpiry := now.Add(20 * 24 * time.Hour)
	garmin := testIntegration(uuid.NewString())
	garmin.Provider = domain.ProviderGarmin
	garmin.AccessTokenExpiresAt = now.Add(60 * 24 * time.Hour)
	garmin.RefreshTokenExpiresAt = &refreshExpiry
	require.NoError(t, repo.UpsertIntegration(ctx, garmin))

	thresholds := repository.ExpiryThresholds{
		AccessWithin: map[string]time.Duration{
			domain.ProviderStrava: 24 * time.Hour,
			domain.ProviderGarmin: 7 * 24 * time.Hour,
		},
		RefreshWithin: map[string]time.Duration{
			domain.ProviderGarmin: 30 * 24 * time.Hour,
		},
	}

	selected, err := repo.ListExpiring(ctx, now, thresholds)
	require.NoError(t, err)

	ids := make(map[string]bool)
	for _, integration := range selected {
		ids[integration.UserID+"/"+integration.Provider] = true
	}
	assert.True(t, ids[expiring.UserID+"/"+domain.ProviderStrava], "short-dated access token should be selected")
	assert.True(t, ids[garmin.UserID+"/"+domain.ProviderGarmin], "expiring refresh token should be selected")
	assert.False(t, ids[fresh.UserID+"/"+domain.ProviderStrava], "fresh integration should not be selected")
	assert.False(t, ids[invalid.UserID+"/"+domain.ProviderStrava], "refresh_token_invalid rows must be excluded")
}

func TestPendingAuthorizationRepository_SingleFlight(t *testing.T) {
	requireDB(t)
	repo := NewPendingAuthorizationRepository(testPool)
	ctx := context.Background()
	userID := uuid.NewString()

	first := &domain.PendingAuthorization{
		UserID:       userID,
		Provider:     domain.ProviderStrava,
		State:        "state-1",
		CodeVerifier: "verifier-1",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertPendingAuthorization(ctx, first))

	// A second flow for a different provider overwrites the first
	second := &domain.PendingAuthorization{
		UserID:       userID,
		Provider:     domain.ProviderWahoo,
		State:        "state-2",
		CodeVerifier: "verifier-2",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertPendingAuthorization(ctx, second))

	got, err := repo.GetPendingAuthorization(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderWahoo, got.Provider)
	assert.Equal(t, "state-2", got.State)

	require.NoError(t, repo.DeletePendingAuthorization(ctx, userID))
	_, err = repo.GetPendingAuthorization(ctx, userID)
	assert.ErrorIs(t, err, domain.ErrAuthSessionNotFound)

	// Delete of a missing row stays idempotent
	assert.NoError(t, repo.DeletePendingAuthorization(ctx, userID))
}

func TestWebhookEventRepository_OrphansAreRecorded(t *testing.T) {
	requireDB(t)
	integrationRepo := NewIntegrationRepository(testPool)
	eventRepo := NewWebhookEventRepository(testPool)
	ctx := context.Background()

	before, err := eventRepo.CountWebhookEvents(ctx)
	require.NoError(t, err)

	// Matched event: an integration holds this provider user id
	connected := testIntegration(uuid.NewString())
	connected.Provider = domain.ProviderWahoo
	connected.ProviderUserID = "wahoo-user-" + uuid.NewString()
	require.NoError(t, integrationRepo.UpsertIntegration(ctx, connected))

	matched := &domain.WebhookEvent{
		Provider:       domain.ProviderWahoo,
		ProviderUserID: connected.ProviderUserID,
		EventType:      "activity.created",
		ActivityID:     "12345",
		ReceivedAt:     time.Now().UTC(),
	}
	require.NoError(t, eventRepo.AppendWebhookEvent(ctx, matched))
	require.NotEmpty(t, matched.ID)

	// Orphan event: nobody has this provider user id
	orphan := &domain.WebhookEvent{
		Provider:       domain.ProviderWahoo,
		ProviderUserID: "never-seen-" + uuid.NewString(),
		EventType:      "activity.created",
		ReceivedAt:     time.Now().UTC(),
	}
	require.NoError(t, eventRepo.AppendWebhookEvent(ctx, orphan))

	after, err := eventRepo.CountWebhookEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Total+2, after.Total, "orphan events must still be recorded")
	assert.Equal(t, before.Matched+1, after.Matched)
	assert.Equal(t, before.Orphaned+1, after.Orphaned)
}

func TestWebhookEventRepository_MarkProcessedOnce(t *testing.T) {
	requireDB(t)
	eventRepo := NewWebhookEventRepository(testPool)
	ctx := context.Background()

	event := &domain.WebhookEvent{
		Provider:       domain.ProviderStrava,
		ProviderUserID: "athlete-" + uuid.NewString(),
		EventType:      "activity.updated",
		ReceivedAt:     time.Now().UTC(),
	}
	require.NoError(t, eventRepo.AppendWebhookEvent(ctx, event))

	require.NoError(t, eventRepo.MarkWebhookEventProcessed(ctx, event.ID, "", time.Now().UTC()))

	got, err := eventRepo.GetWebhookEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, got.Processed)
	assert.NotNil(t, got.ProcessedAt)
	assert.Empty(t, got.ProcessError)

	// Second transition is rejected: the log is append-only
	err = eventRepo.MarkWebhookEventProcessed(ctx, event.ID, "late", time.Now().UTC())
	assert.Error(t, err)
}
