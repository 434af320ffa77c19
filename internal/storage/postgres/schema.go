package postgres

// The base schema lives in migrations/postgres and is applied through the
// migration manager. Only the pgvector column stays here: its presence
// depends on the extension being installed on the server, which is feature
// detection at startup rather than schema versioning.

// MigrationPgvector adds the native vector column used for candidate
// pre-selection. Applied only when the pgvector extension is available.
const MigrationPgvector = `
ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
