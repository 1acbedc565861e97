package database

// Constraint names referenced by the error mapping. They must match Schema.
const (
	constraintUsersEmail    = "users_email_key"
	constraintUsersCodeName = "users_code_name_key"
	constraintPingsParent   = "pings_parent_ping_id_fkey"
	constraintPingsUser     = "pings_user_id_fkey"
)

// Schema is the idempotent migration run at startup.
const Schema = `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email VARCHAR(254) NOT NULL,
		name VARCHAR(30) NOT NULL DEFAULT '',
		code_name VARCHAR(30),
		password_hash VARCHAR(128) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_staff BOOLEAN NOT NULL DEFAULT FALSE,
		is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT users_email_key UNIQUE (email),
		CONSTRAINT users_code_name_key UNIQUE (code_name)
	);

	CREATE TABLE IF NOT EXISTS pings (
		id BIGSERIAL PRIMARY KEY,
		user_id UUID NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		parent_ping_id BIGINT,
		CONSTRAINT pings_user_id_fkey FOREIGN KEY (user_id)
			REFERENCES users(id) ON DELETE CASCADE,
		CONSTRAINT pings_parent_ping_id_fkey FOREIGN KEY (parent_ping_id)
			REFERENCES pings(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pings_user_id ON pings(user_id);
	CREATE INDEX IF NOT EXISTS idx_pings_timestamp ON pings(timestamp);
	CREATE INDEX IF NOT EXISTS idx_pings_lat_lon ON pings(latitude, longitude);
	CREATE INDEX IF NOT EXISTS idx_pings_parent_ping_id ON pings(parent_ping_id);

	CREATE OR REPLACE FUNCTION update_updated_at_column()
	RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ language 'plpgsql';

	DROP TRIGGER IF EXISTS update_users_updated_at ON users;
	CREATE TRIGGER update_users_updated_at BEFORE UPDATE ON users
		FOR EACH ROW EXECUTE FUNCTION update_updated_at_column();
`
