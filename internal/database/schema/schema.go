package schema

// SchemaSQL contains the full database schema initialization script.
// Kept in sync with migrations/; used by test setup and the setup tool so a
// fresh database can be created without running goose.
const SchemaSQL = `
-- Integrations: one row per (user, provider), every write is an upsert
CREATE TABLE IF NOT EXISTS integrations (
    user_id UUID NOT NULL,
    provider VARCHAR(32) NOT NULL,
    provider_user_id VARCHAR(255),
    access_token TEXT NOT NULL,
    refresh_token TEXT,
    access_token_expires_at TIMESTAMPTZ NOT NULL,
    refresh_token_expires_at TIMESTAMPTZ,
    refresh_token_invalid BOOLEAN NOT NULL DEFAULT FALSE,
    sync_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    last_sync_at TIMESTAMPTZ,
    provider_user_data JSONB,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_integrations_provider_user
    ON integrations (provider, provider_user_id);
CREATE INDEX IF NOT EXISTS idx_integrations_access_expiry
    ON integrations (access_token_expires_at) WHERE NOT refresh_token_invalid;
CREATE INDEX IF NOT EXISTS idx_integrations_refresh_expiry
    ON integrations (refresh_token_expires_at) WHERE refresh_token_expires_at IS NOT NULL AND NOT refresh_token_invalid;

-- Pending PKCE authorizations: single-flight per user
CREATE TABLE IF NOT EXISTS pending_authorizations (
    user_id UUID PRIMARY KEY,
    provider VARCHAR(32) NOT NULL,
    state VARCHAR(64) NOT NULL,
    code_verifier VARCHAR(128) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Webhook event log: append-only audit trail keyed by the provider's user id
CREATE TABLE IF NOT EXISTS webhook_events (
    webhook_event_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    provider VARCHAR(32) NOT NULL,
    provider_user_id VARCHAR(255) NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    activity_id VARCHAR(255),
    received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    processed BOOLEAN NOT NULL DEFAULT FALSE,
    process_error TEXT,
    processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_webhook_events_provider_user
    ON webhook_events (provider, provider_user_id);
CREATE INDEX IF NOT EXISTS idx_webhook_events_unprocessed
    ON webhook_events (received_at) WHERE NOT processed;
`
